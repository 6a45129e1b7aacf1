// Package siwx renders and parses EIP-4361 style sign-in messages for every
// supported chain family.
package siwx

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/layer-3/walletauth/core"
)

// DefaultStatement frames the message as a login that moves no funds
const DefaultStatement = "Sign in to verify wallet ownership. This request will not trigger a blockchain transaction or cost any gas fees."

const (
	headerSuffix = " wants you to sign in with your "
	accountLine  = " account:"
	version      = "1"
)

var ErrMalformedMessage = errors.New("malformed sign-in message")

// Fields are the values embedded in a sign-in message
type Fields struct {
	Domain         string
	Address        string
	Statement      string
	URI            string
	Chain          core.ChainID
	Nonce          string
	IssuedAt       time.Time
	ExpirationTime time.Time
}

func familyName(f core.Family) string {
	switch f {
	case core.FamilySolana:
		return "Solana"
	case core.FamilySui:
		return "Sui"
	default:
		return "Ethereum"
	}
}

// Build renders the message text the wallet signs
func Build(f Fields) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s%s%s%s\n", f.Domain, headerSuffix, familyName(f.Chain.Family()), accountLine)
	fmt.Fprintf(&b, "%s\n", f.Address)
	b.WriteString("\n")
	if f.Statement != "" {
		fmt.Fprintf(&b, "%s\n", f.Statement)
		b.WriteString("\n")
	}
	if f.URI != "" {
		fmt.Fprintf(&b, "URI: %s\n", f.URI)
	}
	fmt.Fprintf(&b, "Version: %s\n", version)
	fmt.Fprintf(&b, "Chain ID: %s\n", f.Chain.Reference())
	fmt.Fprintf(&b, "Nonce: %s\n", f.Nonce)
	fmt.Fprintf(&b, "Issued At: %s", f.IssuedAt.UTC().Format(time.RFC3339))
	if !f.ExpirationTime.IsZero() {
		fmt.Fprintf(&b, "\nExpiration Time: %s", f.ExpirationTime.UTC().Format(time.RFC3339))
	}
	return b.String()
}

// Parse extracts the fields from a message produced by Build. The chain is
// resolved from the account family and the "Chain ID" line.
func Parse(msg string) (Fields, error) {
	lines := strings.Split(msg, "\n")
	if len(lines) < 3 {
		return Fields{}, ErrMalformedMessage
	}

	var f Fields
	idx := strings.Index(lines[0], headerSuffix)
	if idx <= 0 || !strings.HasSuffix(lines[0], accountLine) {
		return Fields{}, fmt.Errorf("%w: bad header", ErrMalformedMessage)
	}
	f.Domain = lines[0][:idx]
	family := strings.TrimSuffix(lines[0][idx+len(headerSuffix):], accountLine)

	f.Address = strings.TrimSpace(lines[1])
	if f.Address == "" {
		return Fields{}, fmt.Errorf("%w: missing address", ErrMalformedMessage)
	}

	rest := lines[2:]
	if len(rest) > 0 && rest[0] == "" {
		rest = rest[1:]
	}
	if len(rest) > 0 && !isField(rest[0]) {
		f.Statement = rest[0]
		rest = rest[1:]
		if len(rest) > 0 && rest[0] == "" {
			rest = rest[1:]
		}
	}

	var chainRef string
	for _, line := range rest {
		key, value, ok := strings.Cut(line, ": ")
		if !ok {
			return Fields{}, fmt.Errorf("%w: unexpected line %q", ErrMalformedMessage, line)
		}
		var err error
		switch key {
		case "URI":
			f.URI = value
		case "Version":
			if value != version {
				return Fields{}, fmt.Errorf("%w: unsupported version %q", ErrMalformedMessage, value)
			}
		case "Chain ID":
			chainRef = value
		case "Nonce":
			f.Nonce = value
		case "Issued At":
			f.IssuedAt, err = time.Parse(time.RFC3339, value)
		case "Expiration Time":
			f.ExpirationTime, err = time.Parse(time.RFC3339, value)
		}
		if err != nil {
			return Fields{}, fmt.Errorf("%w: %s: %v", ErrMalformedMessage, key, err)
		}
	}

	if f.Nonce == "" {
		return Fields{}, fmt.Errorf("%w: missing nonce", ErrMalformedMessage)
	}

	chain, err := resolveChain(family, chainRef)
	if err != nil {
		return Fields{}, err
	}
	f.Chain = chain

	return f, nil
}

func isField(line string) bool {
	key, _, ok := strings.Cut(line, ": ")
	if !ok {
		return false
	}
	switch key {
	case "URI", "Version", "Chain ID", "Nonce", "Issued At", "Expiration Time":
		return true
	}
	return false
}

func resolveChain(family, ref string) (core.ChainID, error) {
	candidates := []core.ChainID{
		core.ChainEthereum, core.ChainPolygon, core.ChainBase, core.ChainArbitrum,
		core.ChainOptimism, core.ChainBSC, core.ChainSepolia,
		core.ChainSolana, core.ChainSolanaDevnet, core.ChainSui, core.ChainSuiTestnet,
	}
	for _, c := range candidates {
		if familyName(c.Family()) == family && c.Reference() == ref {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: unknown chain %s/%s", ErrMalformedMessage, family, ref)
}
