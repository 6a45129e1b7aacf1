package core

import (
	"strconv"
	"strings"
)

// Family groups chains that share an address format and a signature scheme
type Family string

const (
	FamilyEVM    Family = "evm"
	FamilySolana Family = "solana"
	FamilySui    Family = "sui"
)

// ChainID identifies a network a wallet is connected to
type ChainID string

const (
	ChainEthereum     ChainID = "ethereum"
	ChainPolygon      ChainID = "polygon"
	ChainBase         ChainID = "base"
	ChainArbitrum     ChainID = "arbitrum"
	ChainOptimism     ChainID = "optimism"
	ChainBSC          ChainID = "bsc"
	ChainSepolia      ChainID = "sepolia"
	ChainSolana       ChainID = "solana"
	ChainSolanaDevnet ChainID = "solana-devnet"
	ChainSui          ChainID = "sui"
	ChainSuiTestnet   ChainID = "sui-testnet"
)

type chainInfo struct {
	family    Family
	reference string
}

var chains = map[ChainID]chainInfo{
	ChainEthereum:     {FamilyEVM, "1"},
	ChainPolygon:      {FamilyEVM, "137"},
	ChainBase:         {FamilyEVM, "8453"},
	ChainArbitrum:     {FamilyEVM, "42161"},
	ChainOptimism:     {FamilyEVM, "10"},
	ChainBSC:          {FamilyEVM, "56"},
	ChainSepolia:      {FamilyEVM, "11155111"},
	ChainSolana:       {FamilySolana, "mainnet"},
	ChainSolanaDevnet: {FamilySolana, "devnet"},
	ChainSui:          {FamilySui, "sui:mainnet"},
	ChainSuiTestnet:   {FamilySui, "sui:testnet"},
}

// ParseChainID accepts a chain name, a decimal EIP-155 chain id or a 0x-prefixed one
func ParseChainID(s string) (ChainID, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if _, ok := chains[ChainID(s)]; ok {
		return ChainID(s), nil
	}

	var n uint64
	var err error
	if strings.HasPrefix(s, "0x") {
		n, err = strconv.ParseUint(s[2:], 16, 64)
	} else {
		n, err = strconv.ParseUint(s, 10, 64)
	}
	if err == nil {
		if id, ok := ChainFromEIP155(n); ok {
			return id, nil
		}
	}

	switch s {
	case "eth", "mainnet":
		return ChainEthereum, nil
	case "sol", "solana:mainnet":
		return ChainSolana, nil
	case "sui:mainnet":
		return ChainSui, nil
	}

	return "", ErrUnsupportedChain
}

// ChainFromEIP155 maps a numeric EVM chain id to a known chain
func ChainFromEIP155(id uint64) (ChainID, bool) {
	ref := strconv.FormatUint(id, 10)
	for chain, info := range chains {
		if info.family == FamilyEVM && info.reference == ref {
			return chain, true
		}
	}
	return "", false
}

// Valid reports whether the chain is known
func (c ChainID) Valid() bool {
	_, ok := chains[c]
	return ok
}

// Family returns the chain family, or an empty string for unknown chains
func (c ChainID) Family() Family {
	return chains[c].family
}

// Reference is the value written to the "Chain ID" line of a sign-in message
func (c ChainID) Reference() string {
	return chains[c].reference
}

// EIP155 returns the numeric chain id of an EVM chain
func (c ChainID) EIP155() (uint64, bool) {
	info, ok := chains[c]
	if !ok || info.family != FamilyEVM {
		return 0, false
	}
	n, err := strconv.ParseUint(info.reference, 10, 64)
	return n, err == nil
}

func (c ChainID) String() string {
	return string(c)
}

// ProviderID identifies a wallet provider
type ProviderID string

const (
	ProviderMetaMask      ProviderID = "metamask"
	ProviderPhantom       ProviderID = "phantom"
	ProviderSlush         ProviderID = "slush"
	ProviderWalletConnect ProviderID = "walletconnect"
)

var providerFamilies = map[ProviderID][]Family{
	ProviderMetaMask:      {FamilyEVM},
	ProviderWalletConnect: {FamilyEVM},
	ProviderPhantom:       {FamilySolana, FamilyEVM},
	ProviderSlush:         {FamilySui},
}

// ParseProviderID normalizes a provider name
func ParseProviderID(s string) (ProviderID, error) {
	p := ProviderID(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := providerFamilies[p]; !ok {
		return "", ErrUnsupportedProvider
	}
	return p, nil
}

// Supports reports whether the provider can sign for the chain
func (p ProviderID) Supports(chain ChainID) bool {
	for _, f := range providerFamilies[p] {
		if f == chain.Family() {
			return true
		}
	}
	return false
}

func (p ProviderID) String() string {
	return string(p)
}
