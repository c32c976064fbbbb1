package whatsapp

import (
	"context"
	"testing"
)

func TestClientOptions(t *testing.T) {
	opts := &Opts{}

	WithDBDSN("/var/lib/bookline/test.db")(opts)
	if opts.DBDSN != "/var/lib/bookline/test.db" {
		t.Errorf("expected DBDSN to be set, got %q", opts.DBDSN)
	}

	WithQRCodeOutput("/tmp/qr.txt")(opts)
	if opts.QRPath != "/tmp/qr.txt" {
		t.Errorf("expected QRPath to be set, got %q", opts.QRPath)
	}

	WithNumericCode()(opts)
	if !opts.NumericCode {
		t.Error("expected NumericCode to be true")
	}
}

func TestMockClientSendMessage(t *testing.T) {
	m := NewMockClient()
	if err := m.SendMessage(context.Background(), "15550100", "Your appointment is confirmed."); err != nil {
		t.Errorf("expected mock send to succeed, got %v", err)
	}
}

func TestClientSendMessageValidation(t *testing.T) {
	var c Client
	if err := c.SendMessage(context.Background(), "15550100", "hi"); err == nil {
		t.Error("expected error from unconnected client")
	}
	if err := (&Client{waClient: nil}).SendMessage(context.Background(), "", "hi"); err == nil {
		t.Error("expected error for empty recipient")
	}
}
