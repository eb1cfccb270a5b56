// Package echo implements the line-echo protocol on top of transport.Conn.
//
// Every line is terminated by '\n'. The server answers each line with
// "OK <text>\n" and answers "quit" (any case, surrounding whitespace
// ignored) with "OK bye\n" before closing. There is no pipelining: a client
// sends one line and waits for exactly one response line.
//
// Handler is the server role. Interactive is the client role, fed by a
// LineSource such as Console.
package echo
