package notify

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// TwilioCallSender places voice calls through the Twilio REST API, reading
// the alert message aloud with text-to-speech.
type TwilioCallSender struct {
	client *twilio.RestClient
	from   string
}

// NewTwilioCallSender creates a voice-call sender using the given Twilio
// account.
func NewTwilioCallSender(accountSID, authToken, fromNumber string) *TwilioCallSender {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return &TwilioCallSender{client: client, from: fromNumber}
}

// Channel identifies this sender as the voice-call channel.
func (s *TwilioCallSender) Channel() Channel {
	return ChannelCall
}

// Send places one call and returns the Twilio call SID.
func (s *TwilioCallSender) Send(ctx context.Context, msg *Message) (string, error) {
	params := &twilioApi.CreateCallParams{}
	params.SetTo(msg.To)
	params.SetFrom(s.from)
	params.SetTwiml(speechTwiml(msg.Body))

	resp, err := s.client.Api.CreateCall(params)
	if err != nil {
		return "", fmt.Errorf("twilio call to %s failed: %w", msg.To, err)
	}
	if resp.Sid == nil {
		return "", nil
	}
	return *resp.Sid, nil
}

// speechTwiml wraps the message in a TwiML Say verb, repeated once so a
// listener who picks up late still hears the full message.
func speechTwiml(body string) string {
	var escaped bytes.Buffer
	xml.EscapeText(&escaped, []byte(body)) // never fails for a bytes.Buffer
	return fmt.Sprintf(
		`<Response><Say voice="alice" loop="2">%s</Say></Response>`,
		escaped.String(),
	)
}
