package emailsvc

import (
	"bytes"
	"encoding/base64"
	"net/mail"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/shule/core"
	logsvc "github.com/trezcool/shule/services/logger"
)

func TestMain(m *testing.M) {
	core.ParseEmailTemplates(logsvc.NewNopLogger(), true)
	m.Run()
}

func TestConsoleServiceMock_SendMessages(t *testing.T) {
	conf := core.NewTestConfig()
	svc := NewConsoleServiceMock(conf, logsvc.NewNopLogger())

	to := []mail.Address{{Name: "Jane", Address: "jane@school.com"}}
	svc.SendMessages(
		&core.EmailMessage{To: to, Subject: "plain", BodyStr: "hello"},
		&core.EmailMessage{Subject: "no recipient", BodyStr: "hello"},
		&core.EmailMessage{To: to, Subject: "no content"},
		&core.EmailMessage{
			To:           to,
			Subject:      "graded",
			TemplateName: "submission_graded",
			TemplateData: map[string]interface{}{
				"Name":       "Jane",
				"Course":     "Algebra",
				"CourseID":   "c1",
				"Assignment": "Homework 1",
				"Grade":      9.5,
				"MaxPoints":  10.0,
				"Feedback":   "",
			},
		},
	)

	sent := svc.SentMessages()
	require.Len(t, sent, 2)
	assert.Equal(t, "hello", sent[0].TextContent)
	assert.Contains(t, sent[1].TextContent, "Homework 1")
	assert.Contains(t, sent[1].TextContent, conf.FrontendBaseURL+"/courses/c1")
	assert.Contains(t, sent[1].HTMLContent, "Algebra")

	svc.Reset()
	assert.Empty(t, svc.SentMessages())
}

func TestConsoleService_format(t *testing.T) {
	svc := NewConsoleService(core.NewTestConfig(), logsvc.NewNopLogger())

	msg := core.EmailMessage{
		To:          []mail.Address{{Address: "jane@school.com"}},
		Subject:     "Gradebook",
		TextContent: "see attached",
	}
	require.NoError(t, msg.Attach(strings.NewReader("a,b\n1,2\n"), "grades.csv", "text/csv"))

	body, err := svc.format(msg)
	require.NoError(t, err)
	assert.Contains(t, body, "Subject: [Shule] Gradebook")
	assert.Contains(t, body, "multipart/mixed")
	assert.Contains(t, body, "filename=grades.csv")
	assert.Contains(t, body, base64.StdEncoding.EncodeToString([]byte("a,b\n1,2\n")))
}

func TestSendgridService_prepare(t *testing.T) {
	svc := NewSendgridService(core.NewTestConfig(), logsvc.NewNopLogger()).(*sendgridService)

	msg := core.EmailMessage{
		To:          []mail.Address{{Name: "Jane", Address: "jane@school.com"}},
		Cc:          []mail.Address{{Address: "cc@school.com"}},
		Subject:     "Hi",
		TextContent: "text",
		Attachments: []core.Attachment{{Content: bytes.NewBufferString("Zm9v"), ContentType: "text/plain", Filename: "foo.txt"}},
	}
	m := svc.prepare(msg)

	require.Len(t, m.Personalizations, 1)
	assert.Equal(t, "[Shule] Hi", m.Personalizations[0].Subject)
	assert.Equal(t, "jane@school.com", m.Personalizations[0].To[0].Address)
	assert.Equal(t, "cc@school.com", m.Personalizations[0].CC[0].Address)
	require.Len(t, m.Content, 1)
	assert.Equal(t, "text/plain", m.Content[0].Type)
	require.Len(t, m.Attachments, 1)
	assert.Equal(t, "Zm9v", m.Attachments[0].Content)
	assert.Equal(t, "noreply@localhost", m.From.Address)
}
