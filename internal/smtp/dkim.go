package smtp

import (
	"bytes"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"strings"

	"github.com/emersion/go-msgauth/dkim"
)

var dkimPrivateKey *rsa.PrivateKey

// LoadDKIMPrivateKey loads a PKCS#1 PEM private key used to sign outbound
// messages. Signing only happens when a key is loaded and the send
// configuration carries a DKIM domain.
func LoadDKIMPrivateKey(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return fmt.Errorf("invalid PEM data")
	}

	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return err
	}

	dkimPrivateKey = key
	return nil
}

func signMessage(raw string, cfg Config) (string, error) {
	selector := cfg.DKIMSelector
	if selector == "" {
		selector = "mail"
	}

	opts := &dkim.SignOptions{
		Domain:   cfg.DKIMDomain, // MUST match the From domain
		Selector: selector,
		Signer:   dkimPrivateKey,
		HeaderKeys: []string{
			"from",
			"to",
			"subject",
			"date",
			"message-id",
		},
	}

	var signed bytes.Buffer
	if err := dkim.Sign(&signed, strings.NewReader(raw), opts); err != nil {
		return "", err
	}

	return strings.TrimRight(signed.String(), "\r\n"), nil
}
