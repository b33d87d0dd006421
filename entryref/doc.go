// Package entryref encodes entry references: compact uint32 handles naming an
// element by buffer id and offset.
//
// # Layout
//
// A Layout splits the 32 bits into a low offset field and a high buffer id
// field:
//
//	 31                offsetBits              0
//	+--------------------+--------------------+
//	|     buffer id      |       offset       |
//	+--------------------+--------------------+
//
// The zero reference (buffer 0, offset 0) is the invalid value. Buffers
// reserve element 0 of buffer 0 so no allocation can ever return it.
package entryref
