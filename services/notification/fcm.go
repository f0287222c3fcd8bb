package notification

import (
	"context"
	"errors"
	"fmt"

	userRepo "bidmarket/database/repository/user"
	"bidmarket/models"

	"firebase.google.com/go/v4/messaging"
)

// FCMNotifier pushes to the receiver's registered device.
type FCMNotifier struct {
	client *messaging.Client
	users  userRepo.UserRepository
}

func NewFCMNotifier(client *messaging.Client, users userRepo.UserRepository) (*FCMNotifier, error) {
	if client == nil || users == nil {
		return nil, fmt.Errorf("notification service initialization error: messaging client or user store is nil")
	}
	return &FCMNotifier{client: client, users: users}, nil
}

func (f *FCMNotifier) Notify(ctx context.Context, n models.Notification) error {
	u, err := f.users.GetByID(ctx, n.ReceiverID)
	if err != nil {
		if errors.Is(err, userRepo.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("fcm: could not load receiver %s: %w", n.ReceiverID, err)
	}
	if u.FCMToken == "" {
		return nil
	}

	if _, err := f.client.Send(ctx, buildMessage(u.FCMToken, string(u.Role), n)); err != nil {
		return fmt.Errorf("fcm: failed to send message: %w", err)
	}
	return nil
}

func buildMessage(token, role string, n models.Notification) *messaging.Message {
	data := map[string]string{
		"type":          n.Type,
		"role":          role,
		"referenceKind": string(n.Reference.Kind),
		"referenceId":   n.Reference.ID,
	}
	for k, v := range n.Data {
		data[k] = v
	}

	return &messaging.Message{
		Token: token,
		Notification: &messaging.Notification{
			Title: n.Title,
			Body:  n.Body,
		},
		Data: data,
		Android: &messaging.AndroidConfig{
			Priority: "high",
			Notification: &messaging.AndroidNotification{
				ChannelID: "high_priority",
				Sound:     "default",
			},
		},
		APNS: &messaging.APNSConfig{
			Headers: map[string]string{
				"apns-priority":  "10",
				"apns-push-type": "alert",
			},
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{Sound: "default"},
			},
		},
	}
}
