package instrument

import "net/http"

// Transport is an http.RoundTripper that records every URL it fetches
// successfully as a remote input. Credentials in the URL are redacted.
type Transport struct {
	// Base defaults to http.DefaultTransport.
	Base http.RoundTripper
	Rec  Recorder
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	resp, err := base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	t.Rec.RecordRemoteInput(req.URL.Redacted())
	return resp, nil
}

// Client returns an *http.Client that records through rec.
func Client(rec Recorder) *http.Client {
	return &http.Client{Transport: &Transport{Rec: rec}}
}
