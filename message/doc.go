// Messages cross every wire as independent deep copies. The router stamps
// _msgid on the sender's message before cloning, so all copies of one send
// share an id while mutations on one path never leak into another:
//
//	msg := message.New("hello", "greeting")
//	id := message.EnsureID(msg)
//	copyA, copyB := message.Clone(msg), message.Clone(msg)
//	message.SetProperty(copyA, "payload", "HELLO") // copyB unchanged
package message
