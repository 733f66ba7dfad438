package notify

import (
	"context"
	"fmt"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// TwilioSMSSender delivers SMS messages through the Twilio REST API.
type TwilioSMSSender struct {
	client *twilio.RestClient
	from   string
}

// NewTwilioSMSSender creates an SMS sender using the given Twilio account.
func NewTwilioSMSSender(accountSID, authToken, fromNumber string) *TwilioSMSSender {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return &TwilioSMSSender{client: client, from: fromNumber}
}

// Channel identifies this sender as the SMS channel.
func (s *TwilioSMSSender) Channel() Channel {
	return ChannelSMS
}

// Send delivers one SMS and returns the Twilio message SID.
func (s *TwilioSMSSender) Send(ctx context.Context, msg *Message) (string, error) {
	params := &twilioApi.CreateMessageParams{}
	params.SetTo(msg.To)
	params.SetFrom(s.from)
	params.SetBody(msg.Body)

	resp, err := s.client.Api.CreateMessage(params)
	if err != nil {
		return "", fmt.Errorf("twilio sms to %s failed: %w", msg.To, err)
	}
	if resp.Sid == nil {
		return "", nil
	}
	return *resp.Sid, nil
}
