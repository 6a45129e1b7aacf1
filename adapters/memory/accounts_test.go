package memory

import (
	"testing"

	"github.com/layer-3/walletauth/adapters/accountstest"
	"github.com/layer-3/walletauth/ports"
)

func TestAccounts(t *testing.T) {
	accountstest.Run(t, func(t *testing.T) ports.AccountRepository {
		return NewAccounts()
	})
}
