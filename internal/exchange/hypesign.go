// hypesign.go implements Hyperliquid request signing. The venue
// authenticates exchange actions with an secp256k1 wallet signature over an
// EIP-712 "agent" struct whose connectionId commits to the serialized action
// and nonce.
package exchange

import (
	"crypto/ecdsa"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// rsvSignature is the wire form Hyperliquid expects.
type rsvSignature struct {
	R string `json:"r"`
	S string `json:"s"`
	V uint8  `json:"v"`
}

// hypeSigner holds the trading wallet and produces action signatures.
type hypeSigner struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

func newHypeSigner(priKeyHex string) (*hypeSigner, error) {
	key, err := crypto.HexToECDSA(trimHexPrefix(priKeyHex))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return &hypeSigner{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
	}, nil
}

func trimHexPrefix(s string) string {
	if len(s) >= 2 && (s[:2] == "0x" || s[:2] == "0X") {
		return s[2:]
	}
	return s
}

// actionHash commits to the serialized action, the nonce, and the absent
// vault address.
func (s *hypeSigner) actionHash(action any, nonce uint64) (common.Hash, error) {
	data, err := json.Marshal(action)
	if err != nil {
		return common.Hash{}, fmt.Errorf("marshal action: %w", err)
	}

	payload := make([]byte, 0, len(data)+9)
	payload = append(payload, data...)
	payload = binary.BigEndian.AppendUint64(payload, nonce)
	payload = append(payload, 0x00) // no vault address
	return crypto.Keccak256Hash(payload), nil
}

// signAction signs the EIP-712 agent struct binding this wallet to the
// action hash.
func (s *hypeSigner) signAction(action any, nonce uint64) (rsvSignature, error) {
	connectionID, err := s.actionHash(action, nonce)
	if err != nil {
		return rsvSignature{}, err
	}

	typedData := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"Agent": {
				{Name: "source", Type: "string"},
				{Name: "connectionId", Type: "bytes32"},
			},
		},
		PrimaryType: "Agent",
		Domain: apitypes.TypedDataDomain{
			Name:              "Exchange",
			Version:           "1",
			ChainId:           math.NewHexOrDecimal256(1337),
			VerifyingContract: common.Address{}.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"source":       "a",
			"connectionId": hexutil.Encode(connectionID.Bytes()),
		},
	}

	digest, _, err := apitypes.TypedDataAndHash(typedData)
	if err != nil {
		return rsvSignature{}, fmt.Errorf("typed data hash: %w", err)
	}

	sig, err := crypto.Sign(digest, s.key)
	if err != nil {
		return rsvSignature{}, fmt.Errorf("sign action: %w", err)
	}

	return rsvSignature{
		R: hexutil.EncodeBig(new(big.Int).SetBytes(sig[:32])),
		S: hexutil.EncodeBig(new(big.Int).SetBytes(sig[32:64])),
		V: sig[64] + 27,
	}, nil
}
