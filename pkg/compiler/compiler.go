// Package compiler implements ember's single-pass compiler: there is no
// intermediate AST. Parsing and code generation happen in the same pass,
// using Vaughan Pratt's operator-precedence technique: a table indexed by
// token kind supplies a prefix rule, an infix rule, and an infix precedence
// for every token that can start or continue an expression.
//
// A program compiles to a tree of ObjFunctionData values: compiling a
// function declaration recursively compiles its body with a fresh
// functionCompiler pushed on top of the current one, and pops it again once
// the body is done, emitting an OP_CLOSURE into the *enclosing* function's
// code.
package compiler

import (
	"fmt"
	"strconv"

	"github.com/kristofer/ember/pkg/scanner"
	"github.com/kristofer/ember/pkg/token"
	"github.com/kristofer/ember/pkg/value"
)

// Interner lets the compiler canonicalize every string and identifier it
// compiles into the same heap object the VM's globals table and runtime
// string operations use, so that pointer identity can stand in for value
// equality end to end. The VM satisfies this interface with its intern
// table; tests can use a bare value.Table wrapped in a small adapter.
type Interner interface {
	InternString(chars string) *value.ObjStringData
}

// DefaultInitializerName is the method name treated as a class's
// constructor when no other name is configured.
const DefaultInitializerName = "constructor"

// Precedence levels, low to high. Bitwise operators sit between EQUALITY and
// COMPARISON (so `a == b & c` groups as `a == (b & c)`, unlike C, where
// bitwise operators bind more loosely than `==`); shifts sit between
// COMPARISON and TERM.
type Precedence int

const (
	PrecNone Precedence = iota
	PrecAssignment
	PrecOr
	PrecAnd
	PrecEquality
	PrecBitOr
	PrecBitXor
	PrecBitAnd
	PrecComparison
	PrecShift
	PrecTerm
	PrecFactor
	PrecUnary
	PrecCall
	PrecPrimary
)

type parseFn func(c *Compiler, canAssign bool)

type parseRule struct {
	prefix     parseFn
	infix      parseFn
	precedence Precedence
}

// FunctionType distinguishes the kind of function a FunctionCompiler frame
// is compiling, since the implicit return and slot-0 naming differ per kind.
type FunctionType int

const (
	TypeFunction FunctionType = iota
	TypeScript
	TypeMethod
	TypeInitializer
)

type local struct {
	name       token.Token
	depth      int
	isCaptured bool
}

type upvalueRef struct {
	index   byte
	isLocal bool
}

const maxLocals = 256
const maxUpvalues = 256
const maxConstants = value.MaxConstants

// functionCompiler is one frame of the compiler's own call stack: one per
// function nested inside the program currently being compiled. It threads
// back to its enclosing frame so upvalue resolution can walk outward.
type functionCompiler struct {
	enclosing *functionCompiler
	function  *value.ObjFunctionData
	fnType    FunctionType

	locals     [maxLocals]local
	localCount int
	upvalues   [maxUpvalues]upvalueRef
	scopeDepth int
}

// Compiler turns ember source into a tree of compiled function objects. It
// is single-use: construct one with New per compilation.
type Compiler struct {
	scanner *scanner.Scanner
	interner Interner

	current  token.Token
	previous token.Token

	hadError  bool
	panicMode bool
	errors    []string

	fc *functionCompiler

	initializerName string

	innermostLoopStart      int
	innermostLoopScopeDepth int

	classStack []classCompiler
}

type classCompiler struct {
	hasSuperclass bool
}

// Option configures a Compiler at construction.
type Option func(*Compiler)

// WithInitializerName overrides the method name treated as a constructor.
// The default is DefaultInitializerName.
func WithInitializerName(name string) Option {
	return func(c *Compiler) { c.initializerName = name }
}

// New creates a Compiler over src. interner is used to canonicalize every
// string and identifier name the compiler emits into the constant pool.
func New(src string, interner Interner, opts ...Option) *Compiler {
	c := &Compiler{
		scanner:                 scanner.New(src),
		interner:                interner,
		initializerName:         DefaultInitializerName,
		innermostLoopStart:      -1,
		innermostLoopScopeDepth: 0,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.pushFunctionCompiler(TypeScript)
	return c
}

// Errors returns every compile error accumulated so far, in source order.
func (c *Compiler) Errors() []string { return c.errors }

// Compile parses and compiles the entire source, returning the top-level
// script function. On any compile error it returns (nil, false); Errors()
// holds the accumulated messages.
func (c *Compiler) Compile() (*value.ObjFunctionData, bool) {
	c.advance()
	for !c.match(token.EOF) {
		c.declaration()
	}
	fn := c.endCompiler()
	if c.hadError {
		return nil, false
	}
	return fn, true
}

func (c *Compiler) pushFunctionCompiler(fnType FunctionType) {
	fn := &value.ObjFunctionData{}
	if fnType != TypeScript {
		fn.Name = c.interner.InternString(c.previous.Lexeme)
	}
	nfc := &functionCompiler{
		enclosing:  c.fc,
		function:   fn,
		fnType:     fnType,
		scopeDepth: 0,
	}
	// Slot 0 is reserved: "this" for methods/initializers, unnamed otherwise.
	nfc.localCount = 1
	if fnType == TypeMethod || fnType == TypeInitializer {
		nfc.locals[0] = local{name: token.Token{Lexeme: "this"}, depth: 0}
	} else {
		nfc.locals[0] = local{name: token.Token{Lexeme: ""}, depth: 0}
	}
	c.fc = nfc
}

// endCompiler closes out the current function frame, emitting the implicit
// return, and pops back to the enclosing frame (nil at the outermost).
func (c *Compiler) endCompiler() *value.ObjFunctionData {
	c.emitReturn()
	fn := c.fc.function
	c.fc = c.fc.enclosing
	return fn
}

// ---- token stream plumbing ----

func (c *Compiler) advance() {
	c.previous = c.current
	for {
		c.current = c.scanner.NextToken()
		if c.current.Kind != token.ERROR {
			break
		}
		c.errorAtCurrent(c.current.Lexeme)
	}
}

func (c *Compiler) check(kind token.Kind) bool { return c.current.Kind == kind }

func (c *Compiler) match(kind token.Kind) bool {
	if !c.check(kind) {
		return false
	}
	c.advance()
	return true
}

func (c *Compiler) consume(kind token.Kind, msg string) {
	if c.current.Kind == kind {
		c.advance()
		return
	}
	c.errorAtCurrent(msg)
}

func (c *Compiler) errorAtCurrent(msg string) { c.errorAt(c.current, msg) }
func (c *Compiler) error(msg string)          { c.errorAt(c.previous, msg) }

func (c *Compiler) errorAt(tok token.Token, msg string) {
	if c.panicMode {
		return
	}
	c.panicMode = true
	c.hadError = true
	where := ""
	switch {
	case tok.Kind == token.EOF:
		where = " at end"
	case tok.Kind == token.ERROR:
		// lexical errors carry their own message in Lexeme already
	default:
		where = fmt.Sprintf(" at '%s'", tok.Lexeme)
	}
	c.errors = append(c.errors, fmt.Sprintf("[line %d] Error%s: %s", tok.Line, where, msg))
}

// synchronize resumes parsing at the next statement boundary after an error,
// so the compiler can keep looking for further errors in one pass instead
// of stopping at the first one.
func (c *Compiler) synchronize() {
	c.panicMode = false
	for c.current.Kind != token.EOF {
		if c.previous.Kind == token.Semicolon {
			return
		}
		switch c.current.Kind {
		case token.Class, token.Fun, token.Var, token.For, token.If, token.While, token.Print, token.Return:
			return
		}
		c.advance()
	}
}

// ---- byte emission ----

func (c *Compiler) chunk() *value.Chunk { return &c.fc.function.Chunk }

func (c *Compiler) emitByte(b byte) { c.chunk().Write(b, c.previous.Line) }
func (c *Compiler) emitOp(op value.Opcode) { c.chunk().WriteOp(op, c.previous.Line) }
func (c *Compiler) emitOps(op1, op2 value.Opcode) {
	c.emitOp(op1)
	c.emitOp(op2)
}
func (c *Compiler) emitOpByte(op value.Opcode, operand byte) {
	c.emitOp(op)
	c.emitByte(operand)
}

func (c *Compiler) emitReturn() {
	if c.fc.fnType == TypeInitializer {
		c.emitOpByte(value.OpGetLocal, 0)
	} else {
		c.emitOp(value.OpNil)
	}
	c.emitOp(value.OpReturn)
}

// makeConstant appends val to the current function's constant pool,
// erroring if that would exceed the single-byte operand's range.
func (c *Compiler) makeConstant(val value.Value) byte {
	idx := c.chunk().AddConstant(val)
	if idx > maxConstants-1 {
		c.error("Too many constants in one chunk.")
		return 0
	}
	return byte(idx)
}

func (c *Compiler) emitConstant(val value.Value) {
	c.emitOpByte(value.OpConstant, c.makeConstant(val))
}

func (c *Compiler) identifierConstant(tok token.Token) byte {
	return c.makeConstant(value.FromObject(c.interner.InternString(tok.Lexeme)))
}

// emitJump writes op followed by a two-byte placeholder offset, returning
// the offset of the first placeholder byte for a later patchJump call.
func (c *Compiler) emitJump(op value.Opcode) int {
	c.emitOp(op)
	c.emitByte(0xff)
	c.emitByte(0xff)
	return len(c.chunk().Code) - 2
}

func (c *Compiler) patchJump(offset int) {
	jump := len(c.chunk().Code) - offset - 2
	if jump > 0xffff {
		c.error("Too much code to jump over.")
	}
	c.chunk().Code[offset] = byte((jump >> 8) & 0xff)
	c.chunk().Code[offset+1] = byte(jump & 0xff)
}

func (c *Compiler) emitLoop(loopStart int) {
	c.emitOp(value.OpLoop)
	offset := len(c.chunk().Code) - loopStart + 2
	if offset > 0xffff {
		c.error("Too much code to jump over.")
	}
	c.emitByte(byte((offset >> 8) & 0xff))
	c.emitByte(byte(offset & 0xff))
}

// ---- scope / local variables ----

func (c *Compiler) beginScope() { c.fc.scopeDepth++ }

func (c *Compiler) endScope() {
	c.fc.scopeDepth--
	for c.fc.localCount > 0 && c.fc.locals[c.fc.localCount-1].depth > c.fc.scopeDepth {
		if c.fc.locals[c.fc.localCount-1].isCaptured {
			c.emitOp(value.OpCloseUpvalue)
		} else {
			c.emitOp(value.OpPop)
		}
		c.fc.localCount--
	}
}

func (c *Compiler) addLocal(name token.Token) {
	if c.fc.localCount >= maxLocals {
		c.error("Too many local variables in function.")
		return
	}
	c.fc.locals[c.fc.localCount] = local{name: name, depth: -1}
	c.fc.localCount++
}

func identifiersEqual(a, b token.Token) bool { return a.Lexeme == b.Lexeme }

func (c *Compiler) declareVariable() {
	if c.fc.scopeDepth == 0 {
		return
	}
	name := c.previous
	for i := c.fc.localCount - 1; i >= 0; i-- {
		l := c.fc.locals[i]
		if l.depth != -1 && l.depth < c.fc.scopeDepth {
			break
		}
		if identifiersEqual(name, l.name) {
			c.error("Already a variable with this name in this scope.")
		}
	}
	c.addLocal(name)
}

func (c *Compiler) parseVariable(errMsg string) byte {
	c.consume(token.Identifier, errMsg)
	c.declareVariable()
	if c.fc.scopeDepth > 0 {
		return 0
	}
	return c.identifierConstant(c.previous)
}

func (c *Compiler) markInitialized() {
	if c.fc.scopeDepth == 0 {
		return
	}
	c.fc.locals[c.fc.localCount-1].depth = c.fc.scopeDepth
}

func (c *Compiler) defineVariable(global byte) {
	if c.fc.scopeDepth > 0 {
		c.markInitialized()
		return
	}
	c.emitOpByte(value.OpDefineGlobal, global)
}

func resolveLocal(fc *functionCompiler, name token.Token) int {
	for i := fc.localCount - 1; i >= 0; i-- {
		if identifiersEqual(name, fc.locals[i].name) {
			if fc.locals[i].depth == -1 {
				return -2 // sentinel: read-in-own-initializer
			}
			return i
		}
	}
	return -1
}

func (c *Compiler) addUpvalue(fc *functionCompiler, index byte, isLocal bool) int {
	count := fc.function.UpvalueCount
	for i := 0; i < count; i++ {
		u := fc.upvalues[i]
		if int(u.index) == int(index) && u.isLocal == isLocal {
			return i
		}
	}
	if count >= maxUpvalues {
		c.error("Too many closure variables in function.")
		return 0
	}
	fc.upvalues[count] = upvalueRef{index: index, isLocal: isLocal}
	fc.function.UpvalueCount++
	return count
}

// resolveUpvalue recursively looks for name in enclosing functions, adding a
// chain of pass-through upvalues from the defining frame down to fc.
func (c *Compiler) resolveUpvalue(fc *functionCompiler, name token.Token) int {
	if fc.enclosing == nil {
		return -1
	}
	local := resolveLocal(fc.enclosing, name)
	if local == -2 {
		c.error("Can't read local variable in its own initializer.")
		return -1
	}
	if local != -1 {
		fc.enclosing.locals[local].isCaptured = true
		return c.addUpvalue(fc, byte(local), true)
	}
	upvalue := c.resolveUpvalue(fc.enclosing, name)
	if upvalue != -1 {
		return c.addUpvalue(fc, byte(upvalue), false)
	}
	return -1
}

// ---- Pratt parsing ----

func (c *Compiler) parsePrecedence(prec Precedence) {
	c.advance()
	rule := rules[c.previous.Kind]
	if rule.prefix == nil {
		c.error("Expect expression.")
		return
	}
	canAssign := prec <= PrecAssignment
	rule.prefix(c, canAssign)

	for prec <= rules[c.current.Kind].precedence {
		c.advance()
		infixRule := rules[c.previous.Kind].infix
		infixRule(c, canAssign)
	}

	if canAssign && c.match(token.Equal) {
		c.error("Invalid assignment target.")
	}
}

func (c *Compiler) expression() { c.parsePrecedence(PrecAssignment) }

func getRule(k token.Kind) parseRule { return rules[k] }

// ---- expression grammar ----

func number(c *Compiler, _ bool) {
	n, _ := strconv.ParseFloat(c.previous.Lexeme, 64)
	c.emitConstant(value.Number(n))
}

func stringLiteral(c *Compiler, _ bool) {
	s := c.interner.InternString(c.previous.Lexeme)
	c.emitConstant(value.FromObject(s))
}

func literal(c *Compiler, _ bool) {
	switch c.previous.Kind {
	case token.False:
		c.emitOp(value.OpFalse)
	case token.Nil:
		c.emitOp(value.OpNil)
	case token.True:
		c.emitOp(value.OpTrue)
	}
}

func grouping(c *Compiler, _ bool) {
	c.expression()
	c.consume(token.RightParen, "Expect ')' after expression.")
}

func unary(c *Compiler, _ bool) {
	opKind := c.previous.Kind
	c.parsePrecedence(PrecUnary)
	switch opKind {
	case token.Bang:
		c.emitOp(value.OpNot)
	case token.Minus:
		c.emitOp(value.OpNegate)
	case token.Tilde:
		c.emitOp(value.OpBitNot)
	}
}

var binaryOps = map[token.Kind]value.Opcode{
	token.BangEqual:             value.OpEqual, // followed by OP_NOT below
	token.EqualEqual:             value.OpEqual,
	token.Greater:                value.OpGreater,
	token.GreaterEqual:           value.OpLess, // followed by OP_NOT below
	token.Less:                   value.OpLess,
	token.LessEqual:              value.OpGreater, // followed by OP_NOT below
	token.Plus:                   value.OpAdd,
	token.Minus:                  value.OpSubtract,
	token.Star:                   value.OpMultiply,
	token.Slash:                  value.OpDivide,
	token.Percent:                value.OpModulo,
	token.Amp:                    value.OpBitAnd,
	token.Pipe:                   value.OpBitOr,
	token.Caret:                  value.OpBitXor,
	token.LessLess:               value.OpLeftShift,
	token.GreaterGreater:         value.OpRightShift,
	token.LessLessLess:           value.OpUnsignedLeftShift,
	token.GreaterGreaterGreater:  value.OpUnsignedRightShift,
}

// negatedOps produces true-or-false inversion: `!=` is EQUAL followed by
// NOT, `>=` is LESS followed by NOT, `<=` is GREATER followed by NOT.
var negatedOps = map[token.Kind]bool{
	token.BangEqual:   true,
	token.GreaterEqual: true,
	token.LessEqual:    true,
}

func binary(c *Compiler, _ bool) {
	opKind := c.previous.Kind
	rule := getRule(opKind)
	c.parsePrecedence(rule.precedence + 1)
	op, ok := binaryOps[opKind]
	if !ok {
		return
	}
	c.emitOp(op)
	if negatedOps[opKind] {
		c.emitOp(value.OpNot)
	}
}

func and_(c *Compiler, _ bool) {
	endJump := c.emitJump(value.OpJumpIfFalse)
	c.emitOp(value.OpPop)
	c.parsePrecedence(PrecAnd)
	c.patchJump(endJump)
}

func or_(c *Compiler, _ bool) {
	elseJump := c.emitJump(value.OpJumpIfFalse)
	endJump := c.emitJump(value.OpJump)
	c.patchJump(elseJump)
	c.emitOp(value.OpPop)
	c.parsePrecedence(PrecOr)
	c.patchJump(endJump)
}

func typeofExpr(c *Compiler, _ bool) {
	c.parsePrecedence(PrecUnary)
	c.emitOp(value.OpTypeof)
}

func argumentList(c *Compiler) byte {
	argc := 0
	if !c.check(token.RightParen) {
		for {
			c.expression()
			if argc == 255 {
				c.error("Can't have more than 255 arguments.")
			}
			argc++
			if !c.match(token.Comma) {
				break
			}
		}
	}
	c.consume(token.RightParen, "Expect ')' after arguments.")
	return byte(argc)
}

func call(c *Compiler, _ bool) {
	argc := argumentList(c)
	c.emitOpByte(value.OpCall, argc)
}

func dot(c *Compiler, canAssign bool) {
	c.consume(token.Identifier, "Expect property name after '.'.")
	name := c.identifierConstant(c.previous)

	switch {
	case canAssign && c.match(token.Equal):
		c.expression()
		c.emitOpByte(value.OpSetProperty, name)
	case c.match(token.LeftParen):
		argc := argumentList(c)
		c.emitOpByte(value.OpInvoke, name)
		c.emitByte(argc)
	default:
		c.emitOpByte(value.OpGetProperty, name)
	}
}

func (c *Compiler) namedVariable(tok token.Token, canAssign bool) {
	var getOp, setOp value.Opcode
	arg := resolveLocal(c.fc, tok)
	switch {
	case arg == -2:
		c.error("Can't read local variable in its own initializer.")
		arg = 0
		getOp, setOp = value.OpGetLocal, value.OpSetLocal
	case arg != -1:
		getOp, setOp = value.OpGetLocal, value.OpSetLocal
	default:
		if u := c.resolveUpvalue(c.fc, tok); u != -1 {
			arg = u
			getOp, setOp = value.OpGetUpvalue, value.OpSetUpvalue
		} else {
			arg = int(c.identifierConstant(tok))
			getOp, setOp = value.OpGetGlobal, value.OpSetGlobal
		}
	}

	if canAssign && c.match(token.Equal) {
		c.expression()
		c.emitOpByte(setOp, byte(arg))
	} else {
		c.emitOpByte(getOp, byte(arg))
	}
}

func variable(c *Compiler, canAssign bool) { c.namedVariable(c.previous, canAssign) }

func this_(c *Compiler, _ bool) {
	if len(c.classStack) == 0 {
		c.error("Can't use 'this' outside of a class.")
		return
	}
	c.namedVariable(c.previous, false)
}

func super_(c *Compiler, _ bool) {
	if len(c.classStack) == 0 {
		c.error("Can't use 'super' outside of a class.")
	} else if !c.classStack[len(c.classStack)-1].hasSuperclass {
		c.error("Can't use 'super' in a class with no superclass.")
	}
	c.consume(token.Dot, "Expect '.' after 'super'.")
	c.consume(token.Identifier, "Expect superclass method name.")
	name := c.identifierConstant(c.previous)

	c.namedVariable(token.Synthetic("this"), false)
	if c.match(token.LeftParen) {
		argc := argumentList(c)
		c.namedVariable(token.Synthetic("super"), false)
		c.emitOpByte(value.OpSuperInvoke, name)
		c.emitByte(argc)
	} else {
		c.namedVariable(token.Synthetic("super"), false)
		c.emitOpByte(value.OpGetSuper, name)
	}
}

// rules is the Pratt table, built at package init so every parse function
// above can reference it by token kind.
var rules [token.KindCount]parseRule

func init() {
	rules[token.LeftParen] = parseRule{grouping, call, PrecCall}
	rules[token.Dot] = parseRule{nil, dot, PrecCall}
	rules[token.Minus] = parseRule{unary, binary, PrecTerm}
	rules[token.Plus] = parseRule{nil, binary, PrecTerm}
	rules[token.Slash] = parseRule{nil, binary, PrecFactor}
	rules[token.Star] = parseRule{nil, binary, PrecFactor}
	rules[token.Percent] = parseRule{nil, binary, PrecFactor}
	rules[token.Bang] = parseRule{unary, nil, PrecNone}
	rules[token.BangEqual] = parseRule{nil, binary, PrecEquality}
	rules[token.EqualEqual] = parseRule{nil, binary, PrecEquality}
	rules[token.Greater] = parseRule{nil, binary, PrecComparison}
	rules[token.GreaterEqual] = parseRule{nil, binary, PrecComparison}
	rules[token.Less] = parseRule{nil, binary, PrecComparison}
	rules[token.LessEqual] = parseRule{nil, binary, PrecComparison}
	rules[token.Identifier] = parseRule{variable, nil, PrecNone}
	rules[token.String] = parseRule{stringLiteral, nil, PrecNone}
	rules[token.Number] = parseRule{number, nil, PrecNone}
	rules[token.And] = parseRule{nil, and_, PrecAnd}
	rules[token.Or] = parseRule{nil, or_, PrecOr}
	rules[token.False] = parseRule{literal, nil, PrecNone}
	rules[token.True] = parseRule{literal, nil, PrecNone}
	rules[token.Nil] = parseRule{literal, nil, PrecNone}
	rules[token.This] = parseRule{this_, nil, PrecNone}
	rules[token.Super] = parseRule{super_, nil, PrecNone}
	rules[token.Typeof] = parseRule{typeofExpr, nil, PrecNone}
	rules[token.Amp] = parseRule{nil, binary, PrecBitAnd}
	rules[token.Pipe] = parseRule{nil, binary, PrecBitOr}
	rules[token.Caret] = parseRule{nil, binary, PrecBitXor}
	rules[token.Tilde] = parseRule{unary, nil, PrecNone}
	rules[token.LessLess] = parseRule{nil, binary, PrecShift}
	rules[token.GreaterGreater] = parseRule{nil, binary, PrecShift}
	rules[token.LessLessLess] = parseRule{nil, binary, PrecShift}
	rules[token.GreaterGreaterGreater] = parseRule{nil, binary, PrecShift}
}

// ---- statements and declarations ----

func (c *Compiler) declaration() {
	switch {
	case c.match(token.Class):
		c.classDeclaration()
	case c.match(token.Fun):
		c.funDeclaration()
	case c.match(token.Var):
		c.varDeclaration()
	default:
		c.statement()
	}
	if c.panicMode {
		c.synchronize()
	}
}

func (c *Compiler) varDeclaration() {
	global := c.parseVariable("Expect variable name.")
	if c.match(token.Equal) {
		c.expression()
	} else {
		c.emitOp(value.OpNil)
	}
	c.consume(token.Semicolon, "Expect ';' after variable declaration.")
	c.defineVariable(global)
}

func (c *Compiler) funDeclaration() {
	global := c.parseVariable("Expect function name.")
	c.markInitialized()
	c.function(TypeFunction)
	c.defineVariable(global)
}

func (c *Compiler) function(fnType FunctionType) {
	c.pushFunctionCompiler(fnType)
	c.beginScope()

	c.consume(token.LeftParen, "Expect '(' after function name.")
	if !c.check(token.RightParen) {
		for {
			c.fc.function.Arity++
			if c.fc.function.Arity > 255 {
				c.errorAtCurrent("Can't have more than 255 parameters.")
			}
			paramConst := c.parseVariable("Expect parameter name.")
			c.defineVariable(paramConst)
			if !c.match(token.Comma) {
				break
			}
		}
	}
	c.consume(token.RightParen, "Expect ')' after parameters.")
	c.consume(token.LeftBrace, "Expect '{' before function body.")
	c.block()

	fc := c.fc
	fn := c.endCompiler()
	idx := c.makeConstant(value.FromObject(fn))
	c.emitOpByte(value.OpClosure, idx)
	for i := 0; i < fn.UpvalueCount; i++ {
		if fc.upvalues[i].isLocal {
			c.emitByte(1)
		} else {
			c.emitByte(0)
		}
		c.emitByte(fc.upvalues[i].index)
	}
}

func (c *Compiler) method() {
	c.consume(token.Identifier, "Expect method name.")
	name := c.previous
	nameConst := c.identifierConstant(name)

	fnType := TypeMethod
	if name.Lexeme == c.initializerName {
		fnType = TypeInitializer
	}
	c.function(fnType)
	c.emitOpByte(value.OpMethod, nameConst)
}

func (c *Compiler) classDeclaration() {
	c.consume(token.Identifier, "Expect class name.")
	nameTok := c.previous
	nameConst := c.identifierConstant(nameTok)
	c.declareVariable()

	c.emitOpByte(value.OpClass, nameConst)
	c.defineVariable(nameConst)

	c.classStack = append(c.classStack, classCompiler{})

	if c.match(token.Extends) || c.match(token.Less) {
		c.consume(token.Identifier, "Expect superclass name.")
		variable(c, false)
		if identifiersEqual(nameTok, c.previous) {
			c.error("A class can't inherit from itself.")
		}

		c.beginScope()
		c.addLocal(token.Synthetic("super"))
		c.defineVariable(0)

		c.namedVariable(nameTok, false)
		c.emitOp(value.OpInherit)
		c.classStack[len(c.classStack)-1].hasSuperclass = true
	}

	c.namedVariable(nameTok, false)
	c.consume(token.LeftBrace, "Expect '{' before class body.")
	for !c.check(token.RightBrace) && !c.check(token.EOF) {
		c.method()
	}
	c.consume(token.RightBrace, "Expect '}' after class body.")
	c.emitOp(value.OpPop)

	if c.classStack[len(c.classStack)-1].hasSuperclass {
		c.endScope()
	}
	c.classStack = c.classStack[:len(c.classStack)-1]
}

func (c *Compiler) statement() {
	switch {
	case c.match(token.Print):
		c.printStatement()
	case c.match(token.For):
		c.forStatement()
	case c.match(token.If):
		c.ifStatement()
	case c.match(token.Return):
		c.returnStatement()
	case c.match(token.While):
		c.whileStatement()
	case c.match(token.Continue):
		c.continueStatement()
	case c.match(token.LeftBrace):
		c.beginScope()
		c.block()
		c.endScope()
	default:
		c.expressionStatement()
	}
}

func (c *Compiler) block() {
	for !c.check(token.RightBrace) && !c.check(token.EOF) {
		c.declaration()
	}
	c.consume(token.RightBrace, "Expect '}' after block.")
}

func (c *Compiler) printStatement() {
	c.expression()
	c.consume(token.Semicolon, "Expect ';' after value.")
	c.emitOp(value.OpPrint)
}

func (c *Compiler) expressionStatement() {
	c.expression()
	c.consume(token.Semicolon, "Expect ';' after expression.")
	c.emitOp(value.OpPop)
}

func (c *Compiler) returnStatement() {
	if c.fc.fnType == TypeScript {
		c.error("Can't return from top-level code.")
	}
	if c.match(token.Semicolon) {
		c.emitReturn()
		return
	}
	if c.fc.fnType == TypeInitializer {
		c.error("Can't return a value from an initializer.")
	}
	c.expression()
	c.consume(token.Semicolon, "Expect ';' after return value.")
	c.emitOp(value.OpReturn)
}

func (c *Compiler) ifStatement() {
	c.consume(token.LeftParen, "Expect '(' after 'if'.")
	c.expression()
	c.consume(token.RightParen, "Expect ')' after condition.")

	thenJump := c.emitJump(value.OpJumpIfFalse)
	c.emitOp(value.OpPop)
	c.statement()

	elseJump := c.emitJump(value.OpJump)
	c.patchJump(thenJump)
	c.emitOp(value.OpPop)

	if c.match(token.Else) {
		c.statement()
	}
	c.patchJump(elseJump)
}

func (c *Compiler) whileStatement() {
	loopStart := len(c.chunk().Code)
	surroundingStart, surroundingDepth := c.innermostLoopStart, c.innermostLoopScopeDepth
	c.innermostLoopStart = loopStart
	c.innermostLoopScopeDepth = c.fc.scopeDepth

	c.consume(token.LeftParen, "Expect '(' after 'while'.")
	c.expression()
	c.consume(token.RightParen, "Expect ')' after condition.")

	exitJump := c.emitJump(value.OpJumpIfFalse)
	c.emitOp(value.OpPop)
	c.statement()
	c.emitLoop(loopStart)

	c.patchJump(exitJump)
	c.emitOp(value.OpPop)

	c.innermostLoopStart, c.innermostLoopScopeDepth = surroundingStart, surroundingDepth
}

// forStatement desugars `for(init; cond; incr) body` into the equivalent
// while loop, with the increment relocated after the body via a pair of
// jumps so it still runs once per iteration even though it's parsed before
// the body.
func (c *Compiler) forStatement() {
	c.beginScope()
	c.consume(token.LeftParen, "Expect '(' after 'for'.")

	switch {
	case c.match(token.Semicolon):
		// no initializer
	case c.match(token.Var):
		c.varDeclaration()
	default:
		c.expressionStatement()
	}

	surroundingStart, surroundingDepth := c.innermostLoopStart, c.innermostLoopScopeDepth
	loopStart := len(c.chunk().Code)
	c.innermostLoopScopeDepth = c.fc.scopeDepth

	exitJump := -1
	if !c.match(token.Semicolon) {
		c.expression()
		c.consume(token.Semicolon, "Expect ';' after loop condition.")
		exitJump = c.emitJump(value.OpJumpIfFalse)
		c.emitOp(value.OpPop)
	}

	if !c.match(token.RightParen) {
		bodyJump := c.emitJump(value.OpJump)
		incrStart := len(c.chunk().Code)
		c.expression()
		c.emitOp(value.OpPop)
		c.consume(token.RightParen, "Expect ')' after for clauses.")

		c.emitLoop(loopStart)
		loopStart = incrStart
		c.patchJump(bodyJump)
	}

	c.innermostLoopStart = loopStart
	c.statement()
	c.emitLoop(loopStart)

	if exitJump != -1 {
		c.patchJump(exitJump)
		c.emitOp(value.OpPop)
	}

	c.innermostLoopStart, c.innermostLoopScopeDepth = surroundingStart, surroundingDepth
	c.endScope()
}

func (c *Compiler) continueStatement() {
	if c.innermostLoopStart == -1 {
		c.error("Can't use 'continue' outside of a loop.")
	}
	c.consume(token.Semicolon, "Expect ';' after 'continue'.")

	for i := c.fc.localCount - 1; i >= 0 && c.fc.locals[i].depth > c.innermostLoopScopeDepth; i-- {
		if c.fc.locals[i].isCaptured {
			c.emitOp(value.OpCloseUpvalue)
		} else {
			c.emitOp(value.OpPop)
		}
	}
	if c.innermostLoopStart != -1 {
		c.emitLoop(c.innermostLoopStart)
	}
}
