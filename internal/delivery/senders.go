// Package delivery moves pending notifications out the door: a dispatcher
// claims due work and hands it to channel senders, and a retry scheduler
// requeues failed notifications that still have attempts left.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	sestypes "github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"

	"notification-engine/internal/models"
)

var (
	ErrChannelUnsupported = errors.New("NOTIFICATION_CHANNEL_UNSUPPORTED")
	ErrSendFailed         = errors.New("NOTIFICATION_SEND_FAILED")
)

// Sender delivers one notification to every pending recipient on it.
type Sender interface {
	Send(ctx context.Context, n *models.Notification) error
}

// Define interfaces for mocking
type SESService interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

type SNSService interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// Registry resolves an action type to its sender. Channels without a
// configured sender resolve to ErrChannelUnsupported, which delivery
// treats as permanent.
type Registry struct {
	senders map[string]Sender
}

func NewRegistry() *Registry {
	return &Registry{senders: make(map[string]Sender)}
}

func (r *Registry) Register(channel string, s Sender) {
	r.senders[channel] = s
}

func (r *Registry) For(channel string) (Sender, error) {
	s, ok := r.senders[channel]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrChannelUnsupported, channel)
	}
	return s, nil
}

// EmailSender sends one SES email addressed to all pending recipients.
type EmailSender struct {
	ses  SESService
	from string
}

func NewEmailSender(sesClient SESService, fromEmail string) *EmailSender {
	return &EmailSender{ses: sesClient, from: fromEmail}
}

func (s *EmailSender) Send(ctx context.Context, n *models.Notification) error {
	to := pendingRecipientValues(n)
	if len(to) == 0 {
		return nil
	}

	subject := RenderTemplate(n.Content.Subject, n.Content.Variables)
	body := RenderTemplate(n.Content.Body, n.Content.Variables)

	_, err := s.ses.SendEmail(ctx, &ses.SendEmailInput{
		Destination: &sestypes.Destination{
			ToAddresses: to,
		},
		Message: &sestypes.Message{
			Subject: &sestypes.Content{Data: aws.String(subject)},
			Body: &sestypes.Body{
				Text: &sestypes.Content{Data: aws.String(body)},
				Html: &sestypes.Content{Data: aws.String(body)},
			},
		},
		Source: aws.String(s.from),
	})
	if err != nil {
		return fmt.Errorf("%w: email: %v", ErrSendFailed, err)
	}
	return nil
}

// SMSSender publishes one SNS message per pending phone number. A
// mid-batch failure fails the notification; recipients already published
// may receive the message again on retry.
type SMSSender struct {
	sns      SNSService
	senderID string
}

func NewSMSSender(snsClient SNSService, senderID string) *SMSSender {
	return &SMSSender{sns: snsClient, senderID: senderID}
}

func (s *SMSSender) Send(ctx context.Context, n *models.Notification) error {
	body := RenderTemplate(n.Content.Body, n.Content.Variables)

	for _, phone := range pendingRecipientValues(n) {
		input := &sns.PublishInput{
			PhoneNumber: aws.String(phone),
			Message:     aws.String(body),
		}
		if s.senderID != "" {
			input.MessageAttributes = map[string]snstypes.MessageAttributeValue{
				"AWS.SNS.SMS.SenderID": {
					DataType:    aws.String("String"),
					StringValue: aws.String(s.senderID),
				},
			}
		}
		if _, err := s.sns.Publish(ctx, input); err != nil {
			return fmt.Errorf("%w: sms to %s: %v", ErrSendFailed, phone, err)
		}
	}
	return nil
}

func pendingRecipientValues(n *models.Notification) []string {
	values := make([]string, 0, len(n.Recipients))
	for _, r := range n.Recipients {
		if r.Status == models.RecipientPending {
			values = append(values, r.Value)
		}
	}
	return values
}

// RenderTemplate substitutes {{placeholder}} occurrences from data and
// strips placeholders that have no value.
func RenderTemplate(tmpl string, data map[string]interface{}) string {
	result := tmpl

	for k, v := range data {
		placeholder := "{{" + k + "}}"
		value := ""
		if s, ok := v.(string); ok {
			value = s
		} else if i, ok := v.(int); ok {
			value = fmt.Sprintf("%d", i)
		} else if v != nil {
			value = fmt.Sprintf("%v", v)
		}
		result = strings.ReplaceAll(result, placeholder, value)
	}

	// Remove any remaining placeholders (missing values)
	for {
		start := strings.Index(result, "{{")
		if start == -1 {
			break
		}
		end := strings.Index(result[start:], "}}")
		if end == -1 {
			break
		}
		end += start + 2
		result = result[:start] + result[end:]
	}

	return result
}
