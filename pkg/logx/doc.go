// Package logx is picotick's structured logging on top of zerolog.
//
// Console lines are meant for people and file lines are JSON. Hot-path
// warnings go through Limited or Every so a stuck sensor cannot flood the log.
package logx
