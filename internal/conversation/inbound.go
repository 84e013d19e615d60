package conversation

import "github.com/Proton-105/mood-bot/internal/domain"

// Inbound identifies the sender of a command or button press.
type Inbound struct {
	UserID    int64
	ChatID    int64
	Username  string
	FirstName string
	LastName  string
	Lang      string
}

func (in Inbound) Profile() domain.Profile {
	return domain.Profile{
		ID:        in.UserID,
		Username:  in.Username,
		FirstName: in.FirstName,
		LastName:  in.LastName,
	}
}
