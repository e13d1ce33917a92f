// Package tgui holds small helpers for Telegram's HTML parse mode and for
// "scope:action:payload" callback data.
package tgui
