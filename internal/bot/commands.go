package bot

import "github.com/Proton-105/mood-bot/internal/domain"

const (
	CommandStart = "/start"
	CommandStop  = "/stop"
	CommandStats = "/stats"
	CommandHelp  = "/help"
)

// CallbackMood prefixes the data of every mood button.
const CallbackMood = domain.MoodPayloadPrefix

// menuCommands lists the commands published to the Telegram client menu, keyed by catalog
// entry for their description.
var menuCommands = []struct {
	name string
	key  string
}{
	{name: "start", key: "commands.start"},
	{name: "stats", key: "commands.stats"},
	{name: "stop", key: "commands.stop"},
	{name: "help", key: "commands.help"},
}
