package tn_schema

import (
	"fmt"
	"strings"

	gethAbi "github.com/ethereum/go-ethereum/accounts/abi"
)

// ParseFields turns a schema string such as "uint256 score, bool like" into
// ABI arguments. Attestation data for the schema is abi.encode of those
// fields in order.
func ParseFields(schema string) (gethAbi.Arguments, error) {
	schema = strings.TrimSpace(schema)
	if schema == "" {
		return gethAbi.Arguments{}, nil
	}

	parts := strings.Split(schema, ",")
	args := make(gethAbi.Arguments, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for i, part := range parts {
		fields := strings.Fields(part)
		if len(fields) != 2 {
			return nil, fmt.Errorf("schema field %d %q: expected \"<type> <name>\"", i, strings.TrimSpace(part))
		}
		typ, err := gethAbi.NewType(fields[0], "", nil)
		if err != nil {
			return nil, fmt.Errorf("schema field %d type %q: %w", i, fields[0], err)
		}
		if _, dup := seen[fields[1]]; dup {
			return nil, fmt.Errorf("schema field %q declared twice", fields[1])
		}
		seen[fields[1]] = struct{}{}
		args = append(args, gethAbi.Argument{Name: fields[1], Type: typ})
	}
	return args, nil
}

// DecodeData unpacks attestation data according to schema.
func DecodeData(schema string, data []byte) (map[string]any, error) {
	args, err := ParseFields(schema)
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, len(args))
	if len(args) == 0 {
		return out, nil
	}
	if err := args.UnpackIntoMap(out, data); err != nil {
		return nil, fmt.Errorf("decode attestation data: %w", err)
	}
	return out, nil
}

// EncodeData packs values in schema field order.
func EncodeData(schema string, values ...any) ([]byte, error) {
	args, err := ParseFields(schema)
	if err != nil {
		return nil, err
	}
	packed, err := args.Pack(values...)
	if err != nil {
		return nil, fmt.Errorf("abi encode attestation data: %w", err)
	}
	return packed, nil
}
