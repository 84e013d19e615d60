// Package testutil holds fakes shared by package tests.
package testutil

import (
	"sync"

	telebot "gopkg.in/telebot.v3"
)

// Context is a telebot.Context double. Only the methods the bot uses are implemented; the
// rest panic through the nil embedded interface.
type Context struct {
	telebot.Context

	From    *telebot.User
	In      *telebot.Chat
	Msg     *telebot.Message
	Cb      *telebot.Callback
	SendErr error

	mu        sync.Mutex
	store     map[string]interface{}
	Sent      []interface{}
	Responses []*telebot.CallbackResponse
}

// NewMessage builds a context for a text message from userID.
func NewMessage(userID int64, text string) *Context {
	user := &telebot.User{ID: userID, Username: "user", FirstName: "Test", LanguageCode: "en"}
	chat := &telebot.Chat{ID: userID, Type: telebot.ChatPrivate}
	return &Context{
		From: user,
		In:   chat,
		Msg:  &telebot.Message{ID: 1, Sender: user, Chat: chat, Text: text},
	}
}

// NewCallback builds a context for a button press on message messageID.
func NewCallback(userID int64, messageID int, data string) *Context {
	user := &telebot.User{ID: userID, Username: "user", FirstName: "Test", LanguageCode: "en"}
	chat := &telebot.Chat{ID: userID, Type: telebot.ChatPrivate}
	msg := &telebot.Message{ID: messageID, Chat: chat}
	return &Context{
		From: user,
		In:   chat,
		Msg:  msg,
		Cb:   &telebot.Callback{ID: "cb", Sender: user, Message: msg, Data: data},
	}
}

func (c *Context) Sender() *telebot.User { return c.From }

func (c *Context) Chat() *telebot.Chat { return c.In }

func (c *Context) Message() *telebot.Message { return c.Msg }

func (c *Context) Callback() *telebot.Callback { return c.Cb }

func (c *Context) Text() string {
	if c.Msg == nil {
		return ""
	}
	return c.Msg.Text
}

func (c *Context) Set(key string, val interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.store == nil {
		c.store = make(map[string]interface{})
	}
	c.store[key] = val
}

func (c *Context) Get(key string) interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store[key]
}

func (c *Context) Send(what interface{}, _ ...interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.SendErr != nil {
		return c.SendErr
	}
	c.Sent = append(c.Sent, what)
	return nil
}

func (c *Context) Respond(resp ...*telebot.CallbackResponse) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(resp) == 0 {
		c.Responses = append(c.Responses, &telebot.CallbackResponse{})
		return nil
	}
	c.Responses = append(c.Responses, resp...)
	return nil
}

// SentTexts returns the string payloads passed to Send.
func (c *Context) SentTexts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.Sent))
	for _, s := range c.Sent {
		if text, ok := s.(string); ok {
			out = append(out, text)
		}
	}
	return out
}
