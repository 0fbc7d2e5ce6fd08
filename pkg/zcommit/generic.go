package zcommit

import (
	"net/url"
)

const (
	// DefaultGenericZsig is the signature of a generic notification without zsig.
	DefaultGenericZsig = "zcommit"
	// DefaultGenericMessage is the body of a generic notification without message.
	DefaultGenericMessage = "(no message)"
)

// GenericRequest is a notification described entirely by query parameters.
type GenericRequest struct {
	Class    string
	Instance string
	Zsig     string
	Message  string
}

// ParseGenericQuery reads class, instance, zsig and message. class and instance
// are required; the first one missing is reported.
func ParseGenericQuery(query url.Values) (GenericRequest, error) {
	req := GenericRequest{
		Class:    lossyUTF8(query.Get("class")),
		Instance: lossyUTF8(query.Get("instance")),
		Zsig:     lossyUTF8(query.Get("zsig")),
		Message:  lossyUTF8(query.Get("message")),
	}
	if req.Class == "" {
		return req, missingField("class")
	}
	if req.Instance == "" {
		return req, missingField("instance")
	}
	if req.Zsig == "" {
		req.Zsig = DefaultGenericZsig
	}
	if req.Message == "" {
		req.Message = DefaultGenericMessage
	}
	return req, nil
}

// Notification builds the zephyr for the request. The sender cannot be overridden.
func (g GenericRequest) Notification() Notification {
	return Notification{
		Sender:    DefaultSender,
		Class:     g.Class,
		Instance:  g.Instance,
		Signature: g.Zsig,
		Body:      g.Message,
	}
}

// Describe is the reply to a GET of the generic endpoint.
func (g GenericRequest) Describe() string {
	return "If you had sent a POST request to this URL, would have sent a zephyr to -c " +
		g.Class + " -i " + g.Instance
}
