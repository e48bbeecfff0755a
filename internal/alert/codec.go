package alert

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ErrMalformedReport marks a report payload that cannot be decoded into a
// valid rule tuple. It is fatal to the ingest call that carried the payload.
var ErrMalformedReport = errors.New("alert: malformed report")

var (
	reportArgs  abi.Arguments
	contentArgs abi.Arguments
)

func init() {
	bytes32T, err := abi.NewType("bytes32", "", nil)
	if err != nil {
		panic("abi type bytes32: " + err.Error())
	}
	stringT, err := abi.NewType("string", "", nil)
	if err != nil {
		panic("abi type string: " + err.Error())
	}
	uint256T, err := abi.NewType("uint256", "", nil)
	if err != nil {
		panic("abi type uint256: " + err.Error())
	}
	addressT, err := abi.NewType("address", "", nil)
	if err != nil {
		panic("abi type address: " + err.Error())
	}

	// Report wire schema: (id, asset, condition, targetPriceUsd, createdAt).
	// Field order is fixed and there is no version field.
	reportArgs = abi.Arguments{
		{Name: "id", Type: bytes32T},
		{Name: "asset", Type: stringT},
		{Name: "condition", Type: stringT},
		{Name: "targetPriceUsd", Type: uint256T},
		{Name: "createdAt", Type: uint256T},
	}

	contentArgs = abi.Arguments{
		{Name: "asset", Type: stringT},
		{Name: "condition", Type: stringT},
		{Name: "targetPriceUsd", Type: uint256T},
		{Name: "createdAt", Type: uint256T},
		{Name: "submitter", Type: addressT},
	}
}

func packRuleContent(asset Asset, condition Condition, targetPriceUSD, createdAt uint64, submitter common.Address) []byte {
	packed, err := contentArgs.Pack(
		string(asset),
		string(condition),
		new(big.Int).SetUint64(targetPriceUSD),
		new(big.Int).SetUint64(createdAt),
		submitter,
	)
	if err != nil {
		// Static types over in-memory values; Pack cannot fail here.
		panic("pack rule content: " + err.Error())
	}
	return packed
}

func keccak(data []byte) []byte {
	return crypto.Keccak256(data)
}

// EncodeReport renders a rule as the canonical report tuple.
func EncodeReport(r Rule) ([]byte, error) {
	payload, err := reportArgs.Pack(
		[32]byte(r.ID),
		string(r.Asset),
		string(r.Condition),
		new(big.Int).SetUint64(r.TargetPriceUSD),
		new(big.Int).SetUint64(r.CreatedAt),
	)
	if err != nil {
		return nil, fmt.Errorf("encode report: %w", err)
	}
	return payload, nil
}

// DecodeReport parses a report tuple back into rule fields. Truncated or
// otherwise malformed buffers fail with ErrMalformedReport; partial data is
// never returned.
func DecodeReport(payload []byte) (Rule, error) {
	values, err := reportArgs.Unpack(payload)
	if err != nil {
		return Rule{}, fmt.Errorf("%w: %v", ErrMalformedReport, err)
	}
	if len(values) != 5 {
		return Rule{}, fmt.Errorf("%w: expected 5 fields, got %d", ErrMalformedReport, len(values))
	}

	id, ok := values[0].([32]byte)
	if !ok {
		return Rule{}, fmt.Errorf("%w: id field has unexpected type", ErrMalformedReport)
	}
	asset, ok := values[1].(string)
	if !ok {
		return Rule{}, fmt.Errorf("%w: asset field has unexpected type", ErrMalformedReport)
	}
	condition, ok := values[2].(string)
	if !ok {
		return Rule{}, fmt.Errorf("%w: condition field has unexpected type", ErrMalformedReport)
	}
	target, err := unpackUint64(values[3], "targetPriceUsd")
	if err != nil {
		return Rule{}, err
	}
	createdAt, err := unpackUint64(values[4], "createdAt")
	if err != nil {
		return Rule{}, err
	}

	return Rule{
		ID:             RuleID(id),
		Asset:          Asset(asset),
		Condition:      Condition(condition),
		TargetPriceUSD: target,
		CreatedAt:      createdAt,
	}, nil
}

func unpackUint64(value interface{}, field string) (uint64, error) {
	n, ok := value.(*big.Int)
	if !ok {
		return 0, fmt.Errorf("%w: %s field has unexpected type", ErrMalformedReport, field)
	}
	if n.Sign() < 0 || !n.IsUint64() {
		return 0, fmt.Errorf("%w: %s out of range", ErrMalformedReport, field)
	}
	return n.Uint64(), nil
}
