package firebase

import (
	"context"
	"fmt"
	"strconv"

	"firebase.google.com/go/v4/messaging"

	"schadenschat/internal/domain/entity"
)

const (
	defaultTag     = "schadens-chat"
	androidColor   = "#1e3a5f"
	androidChannel = "schadens-chat-default"
	// FCM accepts at most 500 tokens per multicast.
	multicastLimit = 500
)

type MessagingClient struct {
	client *messaging.Client
	// defaultLink is used when a payload carries no url.
	defaultLink string
}

func NewMessagingClient(client *messaging.Client, defaultLink string) *MessagingClient {
	return &MessagingClient{
		client:      client,
		defaultLink: defaultLink,
	}
}

// SendMulticast delivers payload to every token and reports one result per token, in order.
func (m *MessagingClient) SendMulticast(ctx context.Context, tokens []string, payload entity.PushPayload) ([]entity.SendResult, error) {
	results := make([]entity.SendResult, 0, len(tokens))
	for start := 0; start < len(tokens); start += multicastLimit {
		end := start + multicastLimit
		if end > len(tokens) {
			end = len(tokens)
		}
		chunk := tokens[start:end]

		msg := m.buildMessage(payload)
		msg.Tokens = chunk
		resp, err := m.client.SendEachForMulticast(ctx, msg)
		if err != nil {
			return results, fmt.Errorf("send multicast: %w", err)
		}

		for i, r := range resp.Responses {
			result := entity.SendResult{Token: chunk[i], Success: r.Success, Err: r.Error}
			if !r.Success && r.Error != nil {
				result.Invalid = isInvalidToken(r.Error)
			}
			results = append(results, result)
		}
	}
	return results, nil
}

// Validate dry-runs a message to token. The bool is false when the token is permanently invalid.
func (m *MessagingClient) Validate(ctx context.Context, token string) (bool, error) {
	_, err := m.client.SendDryRun(ctx, &messaging.Message{
		Token:        token,
		Notification: &messaging.Notification{Title: "Test"},
	})
	if err == nil {
		return true, nil
	}
	if isInvalidToken(err) {
		return false, nil
	}
	return true, err
}

func (m *MessagingClient) buildMessage(payload entity.PushPayload) *messaging.MulticastMessage {
	tag := payload.Tag
	if tag == "" {
		tag = defaultTag
	}
	link := payload.Data["url"]
	if link == "" {
		link = m.defaultLink
	}

	data := map[string]string{
		"type":               "notification",
		"requestId":          "",
		"offerId":            "",
		"messageId":          "",
		"url":                "",
		"tag":                tag,
		"requireInteraction": strconv.FormatBool(payload.RequireInteraction),
	}
	for k, v := range payload.Data {
		data[k] = v
	}

	badge := 1
	return &messaging.MulticastMessage{
		Notification: &messaging.Notification{
			Title: payload.Title,
			Body:  payload.Body,
		},
		Data: data,
		Webpush: &messaging.WebpushConfig{
			Notification: &messaging.WebpushNotification{
				Icon:               payload.Icon,
				Badge:              payload.Badge,
				Tag:                tag,
				RequireInteraction: payload.RequireInteraction,
			},
			FCMOptions: &messaging.WebpushFCMOptions{
				Link: link,
			},
		},
		Android: &messaging.AndroidConfig{
			Priority: "high",
			Notification: &messaging.AndroidNotification{
				Icon:      "notification_icon",
				Color:     androidColor,
				ChannelID: androidChannel,
			},
		},
		APNS: &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{
					Badge: &badge,
					Sound: "default",
				},
			},
		},
	}
}

func isInvalidToken(err error) bool {
	return messaging.IsUnregistered(err) || messaging.IsInvalidArgument(err)
}
