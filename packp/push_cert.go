package packp

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/ProtonMail/go-crypto/openpgp"

	"github.com/pktwire/pktwire/capability"
	"github.com/pktwire/pktwire/pktline"
)

// PushCert is a signed push certificate (git's "push-cert" capability).
// The core does not hold signing keys and therefore never produces a
// signature itself: a caller that wants certified pushes builds the
// certificate body with NewPushCertBody, signs it out of band, and sets
// Signature before handing the UpdateRequests to client.Push. The core's
// job is limited to the wire encoding and, for a caller that wants it, the
// signature verification helper VerifyPushCert (§9 DOMAIN STACK).
type PushCert struct {
	Version   string
	Pusher    string
	Pushee    string
	Nonce     string
	Signature string // armored OpenPGP signature over the certificate body
}

// NewPushCertBody renders the certificate body (everything but the
// signature) that must be signed.
func NewPushCertBody(pusher, pushee, nonce string, commands []*Command) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "certificate version 0.1\n")
	fmt.Fprintf(&sb, "pusher %s\n", pusher)
	fmt.Fprintf(&sb, "pushee %s\n", pushee)
	fmt.Fprintf(&sb, "nonce %s\n", nonce)
	sb.WriteByte('\n')
	for _, c := range commands {
		fmt.Fprintf(&sb, "%s %s %s\n", c.Old, c.New, c.Name)
	}
	return sb.String()
}

// Encode writes the push-cert block: "push-cert <nul>\0<caps>\n" followed
// by the certificate body (which lists the commands it covers), the
// signature and a flush-pkt. No separate command list is written after
// the flush.
func (c *PushCert) Encode(w io.Writer, commands []*Command, caps *capability.List) error {
	if err := pktline.Encodef(w, "push-cert\x00%s\n", caps.String()); err != nil {
		return err
	}

	body := NewPushCertBody(c.Pusher, c.Pushee, c.Nonce, commands)
	for _, line := range strings.SplitAfter(body, "\n") {
		if line == "" {
			continue
		}
		if err := pktline.EncodeString(w, strings.TrimSuffix(line, "\n")); err != nil {
			return err
		}
	}

	if err := pktline.EncodeString(w, c.Signature); err != nil {
		return err
	}

	return pktline.WriteFlush(w)
}

// VerifyPushCert checks body's signature against keyring, returning the
// signer's entity on success. This is an opt-in helper for callers that
// maintain their own trusted keyring; the core never calls it itself.
func VerifyPushCert(keyring openpgp.EntityList, body, armoredSignature string) (*openpgp.Entity, error) {
	signer, err := openpgp.CheckArmoredDetachedSignature(
		keyring,
		strings.NewReader(body),
		bufio.NewReader(strings.NewReader(armoredSignature)),
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("packp: push-cert signature verification failed: %w", err)
	}
	return signer, nil
}
