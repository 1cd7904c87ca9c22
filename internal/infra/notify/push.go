package notify

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

type multicaster interface {
	SendEachForMulticast(ctx context.Context, m *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

// Push sends notifications as FCM messages to every registered device of the user.
type Push struct {
	Directory Directory
	client    multicaster
}

func NewPush(ctx context.Context, projectID, credentialsFile string, dir Directory) (*Push, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("initialising firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("initialising firebase messaging client: %w", err)
	}
	return &Push{Directory: dir, client: client}, nil
}

func (p *Push) Notify(ctx context.Context, userID, text, link string) error {
	contact, ok, err := p.Directory.Contact(ctx, userID)
	if err != nil {
		return err
	}
	if !ok || len(contact.DeviceTokens) == 0 {
		return nil
	}
	res, err := p.client.SendEachForMulticast(ctx, &messaging.MulticastMessage{
		Tokens: contact.DeviceTokens,
		Data: map[string]string{
			"type": "notification",
			"link": link,
		},
		Notification: &messaging.Notification{
			Title: "RentGuru",
			Body:  text,
		},
		Android: &messaging.AndroidConfig{Priority: "high"},
	})
	if err != nil {
		return fmt.Errorf("sending FCM to user %s: %w", userID, err)
	}
	if res.SuccessCount == 0 {
		return fmt.Errorf("sending FCM to user %s: all %d devices failed", userID, res.FailureCount)
	}
	return nil
}
