package server

// command is one entry of the dispatch table.
type command struct {
	handler func(*session, string)

	// open commands may run before login; all others get 530.
	open bool
}

// commandTable maps verbs to handlers. It is a map literal, so a duplicate
// verb is a compile error and a lookup miss is the only way to reach the
// unknown-command path.
var commandTable = map[string]command{
	// Access control
	"USER": {handler: (*session).handleUSER, open: true},
	"PASS": {handler: (*session).handlePASS, open: true},
	"QUIT": {handler: (*session).handleQUIT, open: true},
	"NOOP": {handler: (*session).handleNOOP, open: true},
	"REIN": {handler: (*session).handleREIN, open: true},

	// Directories
	"CWD":  {handler: (*session).handleCWD},
	"CDUP": {handler: (*session).handleCDUP},
	"PWD":  {handler: (*session).handlePWD},
	"MKD":  {handler: (*session).handleMKD},
	"RMD":  {handler: (*session).handleRMD},

	// Files
	"DELE": {handler: (*session).handleDELE},
	"SIZE": {handler: (*session).handleSIZE},
	"SYST": {handler: (*session).handleSYST},

	// Transfer parameters
	"TYPE": {handler: (*session).handleTYPE},
	"PORT": {handler: (*session).handlePORT},
	"PASV": {handler: (*session).handlePASV},

	// Transfers
	"LIST": {handler: (*session).handleLIST},
	"NLST": {handler: (*session).handleNLST},
	"RETR": {handler: (*session).handleRETR},
	"STOR": {handler: (*session).handleSTOR},
	"ABOR": {handler: (*session).handleABOR},
}

// unimplementedCommands are real FTP verbs this server deliberately does not
// support. They get 502 instead of 500 so clients that probe for them
// (EPSV before PASV, FEAT after connect) fall back cleanly.
var unimplementedCommands = map[string]bool{
	"ACCT": true,
	"ALLO": true,
	"APPE": true,
	"AUTH": true,
	"EPRT": true,
	"EPSV": true,
	"FEAT": true,
	"HELP": true,
	"HOST": true,
	"MDTM": true,
	"MLSD": true,
	"MLST": true,
	"MODE": true,
	"OPTS": true,
	"PBSZ": true,
	"PROT": true,
	"REST": true,
	"RNFR": true,
	"RNTO": true,
	"SITE": true,
	"SMNT": true,
	"STAT": true,
	"STOU": true,
	"STRU": true,
	"XCUP": true,
	"XCWD": true,
	"XMKD": true,
	"XPWD": true,
	"XRMD": true,
}
