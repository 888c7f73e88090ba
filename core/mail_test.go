package core_test

import (
	"net/mail"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/odontoweb/clinica/core"
)

func TestEmailMessage_Render(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	conf := &core.Config{
		// assets/ sits next to core/ at the module root
		WorkDir:         filepath.Dir(wd),
		FrontendBaseURL: "https://portal.clinica.test",
		TestMode:        true,
	}

	t.Run("password reset template", func(t *testing.T) {
		msg := &core.EmailMessage{
			To:           []mail.Address{{Name: "Juan Pérez", Address: "patient@clinica.com"}},
			Subject:      "Password Reset",
			TemplateName: "password-reset",
			TemplateData: struct{ Name, UID, Token string }{"Juan Pérez", "dTE", "tok-123"},
		}
		if err := msg.Render(conf); err != nil {
			t.Fatalf("rendering: %v", err)
		}
		assert.True(t, msg.HasContent())
		assert.Contains(t, msg.TextContent, "Hello Juan Pérez,")
		assert.Contains(t, msg.TextContent, "https://portal.clinica.test/password-reset?uid=dTE&token=tok-123")
	})

	t.Run("plain body wins over template", func(t *testing.T) {
		msg := &core.EmailMessage{
			Subject:      "Maintenance window",
			BodyStr:      "The portal will be down tonight.",
			TemplateName: "password-reset",
		}
		if err := msg.Render(conf); err != nil {
			t.Fatalf("rendering: %v", err)
		}
		assert.Equal(t, "The portal will be down tonight.", msg.TextContent)
	})

	t.Run("unknown template leaves the message empty", func(t *testing.T) {
		msg := &core.EmailMessage{Subject: "x", TemplateName: "no-such-template"}
		if err := msg.Render(conf); err != nil {
			t.Fatalf("rendering: %v", err)
		}
		assert.False(t, msg.HasContent())
	})
}
