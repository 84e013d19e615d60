package keyboard

import "fmt"

// CallbackDataLimitBytes is Telegram's limit for inline button callback data.
const CallbackDataLimitBytes = 64

// CheckCallbackData rejects payloads Telegram would refuse.
func CheckCallbackData(data string) error {
	if data == "" {
		return fmt.Errorf("callback data is empty")
	}
	if len(data) > CallbackDataLimitBytes {
		return fmt.Errorf("callback data exceeds %d byte limit: got %d", CallbackDataLimitBytes, len(data))
	}
	return nil
}
