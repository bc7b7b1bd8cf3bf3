package gatewayproto

import "encoding/json"

// RequestMessage is anything the Session can validate and serialize as a
// client->server frame. Concrete payload types below each produce a
// MessageType() and Payload() pair; EncodeRequest wraps them in an Envelope.
type RequestMessage interface {
	MessageType() MessageType
	Payload() (json.RawMessage, error)
}

func marshalPayload(v interface{}) (json.RawMessage, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(b), nil
}

// PostLogin is the POST_LOGIN request (spec.md §6.1).
type PostLogin struct {
	Email    string `json:"Email"`
	Password string `json:"Password"`
}

func (r PostLogin) MessageType() MessageType           { return TypePostLogin }
func (r PostLogin) Payload() (json.RawMessage, error)  { return marshalPayload(r) }

// PostSubChanges is the POST_SUB_CHANGES request (empty body).
type PostSubChanges struct{}

func (r PostSubChanges) MessageType() MessageType          { return TypePostSubChanges }
func (r PostSubChanges) Payload() (json.RawMessage, error) { return marshalPayload(struct{}{}) }

// PostUnsubChanges is the POST_UNSUB_CHANGES request (empty body).
type PostUnsubChanges struct{}

func (r PostUnsubChanges) MessageType() MessageType          { return TypePostUnsubChanges }
func (r PostUnsubChanges) Payload() (json.RawMessage, error) { return marshalPayload(struct{}{}) }

// GetDyn lists sensors, optionally filtered by serial.
type GetDyn struct {
	Serials []int `json:"Serials,omitempty"`
}

func (r GetDyn) MessageType() MessageType          { return TypeGetDyn }
func (r GetDyn) Payload() (json.RawMessage, error) { return marshalPayload(r) }

// GetDynConnected requests the currently connected sensor set.
type GetDynConnected struct{}

func (r GetDynConnected) MessageType() MessageType          { return TypeGetDynConnected }
func (r GetDynConnected) Payload() (json.RawMessage, error) { return marshalPayload(struct{}{}) }

// TakeDynReading requests one fresh vibration reading for Serial.
type TakeDynReading struct {
	Serial int `json:"Serial"`
}

func (r TakeDynReading) MessageType() MessageType          { return TypeTakeDynReading }
func (r TakeDynReading) Payload() (json.RawMessage, error) { return marshalPayload(r) }

// TakeDynTemp requests one fresh temperature reading for Serial.
type TakeDynTemp struct {
	Serial int `json:"Serial"`
}

func (r TakeDynTemp) MessageType() MessageType          { return TypeTakeDynTemp }
func (r TakeDynTemp) Payload() (json.RawMessage, error) { return marshalPayload(r) }

// TakeDynBatt requests one fresh battery reading for Serial.
type TakeDynBatt struct {
	Serial int `json:"Serial"`
}

func (r TakeDynBatt) MessageType() MessageType          { return TypeTakeDynBatt }
func (r TakeDynBatt) Payload() (json.RawMessage, error) { return marshalPayload(r) }

// HistoryQuery is the shared shape of GET_DYN_READINGS/TEMPS/BATTS.
type HistoryQuery struct {
	Serials []int  `json:"Serials,omitempty"`
	Start   string `json:"Start,omitempty"`
	End     string `json:"End,omitempty"`
	Max     int    `json:"Max,omitempty"`
}

// GetDynReadings requests vibration reading history.
type GetDynReadings struct{ HistoryQuery }

func (r GetDynReadings) MessageType() MessageType          { return TypeGetDynReadings }
func (r GetDynReadings) Payload() (json.RawMessage, error) { return marshalPayload(r.HistoryQuery) }

// GetDynTemps requests temperature reading history.
type GetDynTemps struct{ HistoryQuery }

func (r GetDynTemps) MessageType() MessageType          { return TypeGetDynTemps }
func (r GetDynTemps) Payload() (json.RawMessage, error) { return marshalPayload(r.HistoryQuery) }

// GetDynBatts requests battery reading history.
type GetDynBatts struct{ HistoryQuery }

func (r GetDynBatts) MessageType() MessageType          { return TypeGetDynBatts }
func (r GetDynBatts) Payload() (json.RawMessage, error) { return marshalPayload(r.HistoryQuery) }

// EncodeRequest validates req against the request union (it must be a known
// type with a non-empty MessageType — all concrete types above satisfy
// this) and serializes it to a full envelope frame.
func EncodeRequest(req RequestMessage) ([]byte, error) {
	if req == nil {
		return nil, NewError(KindSendError, "nil request message")
	}
	t := req.MessageType()
	if !IsRequestType(t) {
		return nil, NewError(KindSendError, "type %q is not a known request type", t)
	}
	data, err := req.Payload()
	if err != nil {
		return nil, NewError(KindSendError, "marshalling payload for %s: %v", t, err)
	}
	env := Envelope{
		Type: t,
		From: "UI",
		To:   "SERV",
		Data: data,
	}
	out, err := json.Marshal(env)
	if err != nil {
		return nil, NewError(KindSendError, "marshalling envelope for %s: %v", t, err)
	}
	return out, nil
}
