package hec

import "github.com/tidwall/gjson"

// Ack is the collector's acknowledgement body, e.g. {"text":"Success","code":0}.
type Ack struct {
	Text   string
	Code   int64
	Parsed bool
}

// ParseAck reads an acknowledgement. Bodies that are not JSON objects
// yield an unparsed Ack carrying the raw text.
func ParseAck(body []byte) Ack {
	if !gjson.ValidBytes(body) {
		return Ack{Text: string(body)}
	}
	res := gjson.ParseBytes(body)
	if !res.IsObject() {
		return Ack{Text: string(body)}
	}
	return Ack{
		Text:   res.Get("text").String(),
		Code:   res.Get("code").Int(),
		Parsed: true,
	}
}
