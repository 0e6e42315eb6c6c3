package sms

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Message es un SMS capturado por Recorder.
type Message struct {
	Phone    string
	Text     string
	Metadata Metadata
}

// Recorder guarda los mensajes en memoria. Se usa en tests y en el sandbox
// embebido; Err permite simular fallas del provider.
type Recorder struct {
	mu   sync.Mutex
	msgs []Message
	Err  error
}

func (r *Recorder) Send(_ context.Context, phone, text string, md Metadata) (DeliveryResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return DeliveryResult{Provider: "recorder"}, r.Err
	}
	r.msgs = append(r.msgs, Message{Phone: phone, Text: text, Metadata: md})
	return DeliveryResult{Provider: "recorder", MessageID: uuid.NewString()}, nil
}

// Messages devuelve una copia de lo enviado.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.msgs...)
}

// Last devuelve el último mensaje o false si no hubo ninguno.
func (r *Recorder) Last() (Message, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.msgs) == 0 {
		return Message{}, false
	}
	return r.msgs[len(r.msgs)-1], true
}
