package events

import (
	"encoding/base64"
	"strings"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"github.com/hiddenbook/otc-watcher/internal/core/domain"
)

const programDataPrefix = "Program data: "

// Decoded is one typed event recovered from a transaction's logs.
type Decoded struct {
	Name string
	Data domain.EventData
}

// DecodeLogs extracts the OTC events from one transaction's log lines,
// preserving emission order.
//
// The program execution stack is reconstructed from "Program X invoke"
// and "Program X success/failed" lines so that only data lines emitted
// while the target program is executing are attempted. Lines that
// carry the data prefix but do not decode against the catalog are
// skipped; not every data line is one of ours.
func DecodeLogs(logs []string, program solana.PublicKey) []Decoded {
	var out []Decoded
	var stack []string
	target := program.String()

	for _, line := range logs {
		switch {
		case isInvoke(line):
			stack = append(stack, invokedProgram(line))

		case isReturn(line):
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}

		case strings.HasPrefix(line, programDataPrefix):
			if len(stack) == 0 || stack[len(stack)-1] != target {
				continue
			}
			if ev, ok := decodeDataLine(line); ok {
				out = append(out, ev)
			}
		}
	}
	return out
}

func decodeDataLine(line string) (Decoded, bool) {
	payload, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(line, programDataPrefix))
	if err != nil || len(payload) < 8 {
		return Decoded{}, false
	}

	var disc discriminator
	copy(disc[:], payload[:8])

	prototype, ok := catalog[disc]
	if !ok {
		return Decoded{}, false
	}

	data := prototype()
	if err := bin.NewBorshDecoder(payload[8:]).Decode(data); err != nil {
		return Decoded{}, false
	}

	return Decoded{Name: data.EventName(), Data: data}, true
}

// "Program <pubkey> invoke [N]"
func isInvoke(line string) bool {
	return strings.HasPrefix(line, "Program ") && strings.Contains(line, " invoke [")
}

func invokedProgram(line string) string {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return ""
	}
	return fields[1]
}

// "Program <pubkey> success" or "Program <pubkey> failed: ..."
func isReturn(line string) bool {
	if !strings.HasPrefix(line, "Program ") {
		return false
	}
	fields := strings.Fields(line)
	if len(fields) < 3 {
		return false
	}
	return fields[2] == "success" || fields[2] == "failed:" || fields[2] == "failed"
}
