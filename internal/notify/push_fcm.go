package notify

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

// FCMPushSender delivers push notifications through Firebase Cloud
// Messaging. The message To field carries the device registration token.
type FCMPushSender struct {
	client *messaging.Client
}

// NewFCMPushSender creates a push sender from a service-account credentials
// file.
func NewFCMPushSender(ctx context.Context, credentialsFile string) (*FCMPushSender, error) {
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create messaging client: %w", err)
	}
	return &FCMPushSender{client: client}, nil
}

// Channel identifies this sender as the push channel.
func (s *FCMPushSender) Channel() Channel {
	return ChannelPush
}

// Send delivers one push notification and returns the FCM message id.
func (s *FCMPushSender) Send(ctx context.Context, msg *Message) (string, error) {
	response, err := s.client.Send(ctx, &messaging.Message{
		Notification: &messaging.Notification{
			Title: msg.Subject,
			Body:  msg.Body,
		},
		Token: msg.To,
	})
	if err != nil {
		return "", fmt.Errorf("fcm push failed: %w", err)
	}
	return response, nil
}
