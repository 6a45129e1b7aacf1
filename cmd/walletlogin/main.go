// Command walletlogin signs in to a walletauth server with a local key and
// prints the resulting account.
package main

import (
	"context"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/layer-3/walletauth/client/api"
	"github.com/layer-3/walletauth/client/authflow"
	"github.com/layer-3/walletauth/client/wallet"
	"github.com/layer-3/walletauth/client/wallet/keywallet"
	"github.com/layer-3/walletauth/core"
	"github.com/lmittmann/tint"
)

type options struct {
	server   string
	chain    string
	key      string
	tokens   string
	username string
	fullName string
	warnOnly bool
	logout   bool
	debug    bool
}

func main() {
	var opts options
	flag.StringVar(&opts.server, "server", "http://localhost:9000", "walletauth server URL")
	flag.StringVar(&opts.chain, "chain", "ethereum", "Chain to sign in on")
	flag.StringVar(&opts.key, "key", os.Getenv("WALLETLOGIN_KEY"), "Private key: hex for EVM, base58 for Solana, hex seed for Sui. A new key is generated when empty")
	flag.StringVar(&opts.tokens, "tokens", defaultTokenPath(), "Token file")
	flag.StringVar(&opts.username, "username", "", "Username used to complete a new profile")
	flag.StringVar(&opts.fullName, "full-name", "", "Full name used to complete a new profile")
	flag.BoolVar(&opts.warnOnly, "warn-unsafe", false, "Sign challenges that fail the safety check")
	flag.BoolVar(&opts.logout, "logout", false, "Revoke the stored session and exit")
	flag.BoolVar(&opts.debug, "debug", false, "Enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if opts.debug {
		level = slog.LevelDebug
	}
	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{Level: level, TimeFormat: time.Kitchen}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, opts, logger); err != nil {
		logger.Error("walletlogin failed", "error", err)
		os.Exit(1)
	}
}

func defaultTokenPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "walletauth-tokens.json"
	}
	return filepath.Join(dir, "walletauth", "tokens.json")
}

func run(ctx context.Context, opts options, logger *slog.Logger) error {
	client := api.New(opts.server,
		api.WithTokenStore(api.NewFileTokenStore(opts.tokens)),
		api.WithLogger(logger),
	)

	if opts.logout {
		return client.Logout(ctx)
	}

	chain, err := core.ParseChainID(opts.chain)
	if err != nil {
		return err
	}
	env, provider, err := environment(opts.key, chain, logger)
	if err != nil {
		return err
	}

	serverURL, err := url.Parse(opts.server)
	if err != nil {
		return fmt.Errorf("invalid server URL: %w", err)
	}

	safety := authflow.SafetyBlock
	if opts.warnOnly {
		safety = authflow.SafetyWarn
	}
	m := authflow.New(authflow.Options{
		Adapters: env.Adapters(nil),
		Backend:  client,
		Session:  client,
		Domain:   serverURL.Hostname(),
		Safety:   safety,
		Logger:   logger,
	})

	if err := m.SelectProvider(ctx, provider, chain); err != nil {
		return err
	}
	logger.Debug("challenge received", "message", m.Snapshot().Challenge.Message)
	if err := m.Sign(ctx); err != nil {
		return err
	}

	result := m.Snapshot().Result
	if result.ProfilePending {
		if opts.username == "" {
			logger.Warn("profile completion required, run again with -username")
			return printJSON(result)
		}
		if _, err := client.CompleteProfile(ctx, api.ProfileRequest{
			Username:       opts.username,
			FullName:       opts.fullName,
			AgreeToTerms:   true,
			AgreeToPrivacy: true,
		}); err != nil {
			return err
		}
	}

	me, err := client.Me(ctx)
	if err != nil {
		return err
	}
	return printJSON(me)
}

// environment exposes a key wallet for the chain's family the way a browser
// exposes an injected provider
func environment(key string, chain core.ChainID, logger *slog.Logger) (*wallet.Environment, core.ProviderID, error) {
	switch chain.Family() {
	case core.FamilyEVM:
		pk, err := evmKey(key)
		if err != nil {
			return nil, "", err
		}
		id, _ := chain.EIP155()
		w := keywallet.NewEVM(pk, keywallet.WithChainID(id), keywallet.WithFlags(map[string]bool{"isMetaMask": true}))
		logger.Info("using EVM key", "address", w.Address())
		return &wallet.Environment{EVM: []wallet.EvmProvider{w}}, core.ProviderMetaMask, nil

	case core.FamilySolana:
		pk, err := solanaKey(key)
		if err != nil {
			return nil, "", err
		}
		logger.Info("using Solana key", "address", pk.PublicKey())
		return &wallet.Environment{Solana: keywallet.NewSolana(pk)}, core.ProviderPhantom, nil

	case core.FamilySui:
		pk, err := suiKey(key)
		if err != nil {
			return nil, "", err
		}
		w := keywallet.NewSui(pk, keywallet.WithSuiChain(chain.Reference()))
		logger.Info("using Sui key", "address", w.Address())
		return &wallet.Environment{Sui: w}, core.ProviderSlush, nil
	}
	return nil, "", core.ErrUnsupportedChain
}

func evmKey(key string) (*ecdsa.PrivateKey, error) {
	if key == "" {
		return crypto.GenerateKey()
	}
	return crypto.HexToECDSA(strings.TrimPrefix(key, "0x"))
}

func solanaKey(key string) (solanago.PrivateKey, error) {
	if key == "" {
		return solanago.NewRandomPrivateKey()
	}
	return solanago.PrivateKeyFromBase58(key)
}

func suiKey(key string) (ed25519.PrivateKey, error) {
	if key == "" {
		_, pk, err := ed25519.GenerateKey(rand.Reader)
		return pk, err
	}
	seed, err := hex.DecodeString(strings.TrimPrefix(key, "0x"))
	if err != nil || len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("sui key must be a %d byte hex seed", ed25519.SeedSize)
	}
	return ed25519.NewKeyFromSeed(seed), nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
