// Package protocol owns the remote sensor wire grammar.
//
// Ownership boundary:
// - scalar value union (string, integer, float)
// - message decode/encode for the quoted-text grammar
// - frame primitives live in the frame subpackage
//
// Grammar: <command> (SP <argument>)*, where an argument is either a bare token
// (numeric when it starts with 0-9, '-' or '.') or a double-quoted string that
// escapes a literal quote by doubling it.
package protocol
