package login

import (
	"errors"
	"fmt"

	"github.com/0xdeschool/deschool-lens/internal/remote"
	"github.com/0xdeschool/deschool-lens/internal/wallet"
)

// Kind is the severity of a user-facing message.
type Kind int

const (
	KindNone Kind = iota
	KindInfo
	KindError
)

// DefaultClaimSite is where users without a CyberConnect profile claim one.
const DefaultClaimSite = "https://link3.to"

// Message is text ready to show the user.
type Message struct {
	Kind Kind
	Text string
}

// Classify converts a login or wallet error into a user-facing message.
// It is the only place such errors are interpreted.
func Classify(err error) Message {
	if err == nil {
		return Message{}
	}

	var (
		unknown *wallet.UnknownWalletTypeError
		netErr  *remote.NetworkError
		svcErr  *remote.ServiceError
	)
	switch {
	case errors.Is(err, wallet.ErrUserRejected):
		return Message{KindInfo, "Request rejected in wallet"}
	case errors.Is(err, ErrMissingHandle):
		return MissingHandleMessage(DefaultClaimSite)
	case errors.Is(err, wallet.ErrNoProvider):
		return Message{KindError, "No wallet connected, connect a wallet first"}
	case errors.Is(err, ErrNoAddress):
		return Message{KindError, "Can't get address info, please connect MetaMask first"}
	case errors.Is(err, wallet.ErrExtensionNotFound):
		return Message{KindError, "Wallet extension not found, install or unlock MetaMask"}
	case errors.Is(err, wallet.ErrUnexpectedChain):
		return Message{KindError, "Wallet is on the wrong network, switch networks and try again"}
	case errors.Is(err, wallet.ErrNoCustodyWallet):
		return Message{KindError, "No custody wallet found, create or import one first"}
	case errors.As(err, &unknown):
		return Message{KindError, fmt.Sprintf("Configuration error: wallet type %q is not supported", string(unknown.Type))}
	case errors.As(err, &netErr):
		return Message{KindError, "Network error, check your connection and try again"}
	case errors.As(err, &svcErr):
		if code := svcErr.Code(); code != "" {
			return Message{KindError, fmt.Sprintf("Service error %s: %s", code, svcErr.Message)}
		}
		return Message{KindError, "Service error: " + svcErr.Message}
	default:
		return Message{KindError, err.Error()}
	}
}

// MissingHandleMessage is the call to action shown for OutcomeMissingHandle.
func MissingHandleMessage(claimSite string) Message {
	if claimSite == "" {
		claimSite = DefaultClaimSite
	}
	return Message{KindInfo, fmt.Sprintf("Visit %s to claim your profile now", claimSite)}
}
