package scenario

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"

	"github.com/holiman/uint256"

	"github.com/hearthvm/hearth/internal/vm"
)

// Assemble parses assembler notation into a program: one instruction per
// line, mnemonic first, immediates after. Blank lines and lines starting
// with ";" are skipped.
func Assemble(src string) (vm.Program, error) {
	var prog vm.Program

	sc := bufio.NewScanner(strings.NewReader(src))
	lineno := 0
	for sc.Scan() {
		lineno++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, ";") {
			continue
		}
		in, err := parseLine(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineno, err)
		}
		prog = append(prog, in)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return prog, nil
}

func parseLine(line string) (vm.Instruction, error) {
	mnemonic, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	op, ok := vm.OpCodeFromString(strings.ToUpper(mnemonic))
	if !ok {
		return vm.Instruction{}, fmt.Errorf("unknown mnemonic %q", mnemonic)
	}

	in := vm.Instruction{Op: op}
	switch op {
	case vm.PUSH:
		val, err := parseWord(rest)
		if err != nil {
			return vm.Instruction{}, fmt.Errorf("%s: %w", op, err)
		}
		in.Val = val

	case vm.DUP, vm.SWAP, vm.ARG:
		n, err := strconv.Atoi(rest)
		if err != nil {
			return vm.Instruction{}, fmt.Errorf("%s needs a position: %w", op, err)
		}
		in.N = n

	case vm.SLOT, vm.MAPSLOT, vm.EMIT:
		if rest == "" || strings.ContainsRune(rest, ' ') {
			return vm.Instruction{}, fmt.Errorf("%s needs one name, got %q", op, rest)
		}
		in.Name = rest

	case vm.REQUIRE, vm.REVERT:
		reason, err := parseReason(rest)
		if err != nil {
			return vm.Instruction{}, fmt.Errorf("%s: %w", op, err)
		}
		in.Name = reason

	case vm.CALL, vm.DELEGATECALL, vm.TRYCALL, vm.INTCALL:
		fields := strings.Fields(rest)
		if len(fields) != 2 {
			return vm.Instruction{}, fmt.Errorf("%s needs a function name and an argument count, got %q", op, rest)
		}
		argc, err := strconv.Atoi(fields[1])
		if err != nil {
			return vm.Instruction{}, fmt.Errorf("%s argument count: %w", op, err)
		}
		in.Name = fields[0]
		in.N = argc

	default:
		if rest != "" {
			return vm.Instruction{}, fmt.Errorf("%s takes no operand, got %q", op, rest)
		}
	}
	return in, nil
}

// parseWord accepts a decimal or 0x-prefixed hex 256-bit immediate.
func parseWord(s string) (*uint256.Int, error) {
	if s == "" {
		return nil, fmt.Errorf("missing immediate")
	}
	if strings.HasPrefix(s, "0x") {
		return uint256.FromHex(s)
	}
	return uint256.FromDecimal(s)
}

// parseReason accepts an optional failure message, quoted or bare.
func parseReason(s string) (string, error) {
	if s == "" {
		return "", nil
	}
	if s[0] == '"' {
		return strconv.Unquote(s)
	}
	return s, nil
}
