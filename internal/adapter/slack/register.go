package slack

import "github.com/Strob0t/LLManager/internal/port/notifier"

func init() {
	notifier.Register(providerName, func(webhookURL string) (notifier.Notifier, error) {
		return NewNotifier(webhookURL), nil
	})
}
