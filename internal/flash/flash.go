// Package flash はリダイレクトをまたいで一度だけ表示するメッセージを提供します。
package flash

import (
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

// Severity はメッセージの種別です。
type Severity string

const (
	SeverityError   Severity = "error"
	SeveritySuccess Severity = "success"
	SeverityInfo    Severity = "info"
)

// severities は ConsumeAll が返す順序です。
var severities = []Severity{SeverityError, SeveritySuccess, SeverityInfo}

const keyPrefix = "flash:"

// Message は表示待ちのメッセージです。
type Message struct {
	Severity Severity
	Text     string
}

// Messenger はセッションにメッセージを保存します。
type Messenger struct{}

// New は Messenger を作成します。
func New() *Messenger {
	return &Messenger{}
}

// Set はメッセージを保存します。同じ種別の未読メッセージは上書きされます。
func (m *Messenger) Set(c *gin.Context, severity Severity, text string) error {
	s := sessions.Default(c)
	s.Set(keyPrefix+string(severity), text)
	return s.Save()
}

// ConsumeAll は未読メッセージをすべて返し、セッションから削除します。
// 未読がなければ空のスライスを返します。
func (m *Messenger) ConsumeAll(c *gin.Context) ([]Message, error) {
	s := sessions.Default(c)
	messages := []Message{}
	for _, severity := range severities {
		key := keyPrefix + string(severity)
		text, ok := s.Get(key).(string)
		if !ok {
			continue
		}
		s.Delete(key)
		messages = append(messages, Message{Severity: severity, Text: text})
	}
	if len(messages) == 0 {
		return messages, nil
	}
	return messages, s.Save()
}
