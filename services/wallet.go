package services

import (
	"strings"

	"gatecrawl-backend/apperrors"

	"github.com/ethereum/go-ethereum/common"
)

// NormalizeWallet validates a hex address and returns it lowercased.
func NormalizeWallet(wallet string) (string, error) {
	wallet = strings.TrimSpace(wallet)
	if !common.IsHexAddress(wallet) {
		return "", apperrors.Newf(apperrors.CodeValidation, "invalid wallet address %q", wallet)
	}
	return strings.ToLower(common.HexToAddress(wallet).Hex()), nil
}
