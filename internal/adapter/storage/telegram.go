package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/semmidev/rotabak/internal/config"
	"github.com/semmidev/rotabak/internal/domain"
)

// Bot API upload limit for documents.
const telegramMaxFileMB = 50

type TelegramStorage struct {
	bot        *tgbotapi.BotAPI
	chatID     int64
	sendFile   bool
	notifyOnly bool
}

func NewTelegram(cfg *config.UploadTarget) (*TelegramStorage, error) {
	chatID, err := strconv.ParseInt(cfg.ChatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid telegram chat_id %q: %w", cfg.ChatID, err)
	}

	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create telegram bot: %w", domain.ErrCredentialsMissing, err)
	}

	return &TelegramStorage{
		bot:        bot,
		chatID:     chatID,
		sendFile:   cfg.SendFile,
		notifyOnly: cfg.NotifyOnly,
	}, nil
}

// Upload sends the archive as a document, or only a notice when file sending
// is off or the archive exceeds the Bot API limit.
func (t *TelegramStorage) Upload(ctx context.Context, localPath string, key string) error {
	fileInfo, err := os.Stat(localPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", domain.ErrArtifactNotFound, localPath)
		}
		return fmt.Errorf("failed to stat file: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	fileSizeMB := float64(fileInfo.Size()) / (1024 * 1024)

	if t.notifyOnly || !t.sendFile || fileSizeMB > telegramMaxFileMB {
		message := fmt.Sprintf(
			"✅ Backup Created\n\n"+
				"📁 File: %s\n"+
				"📊 Size: %.2f MB\n"+
				"🕐 Time: %s",
			key,
			fileSizeMB,
			fileInfo.ModTime().Format("2006-01-02 15:04:05"),
		)
		if err := t.send(tgbotapi.NewMessage(t.chatID, message)); err != nil {
			return fmt.Errorf("%w: failed to send telegram notification: %w", domain.ErrTransmission, err)
		}
		return nil
	}

	doc := tgbotapi.NewDocument(t.chatID, tgbotapi.FilePath(localPath))
	doc.Caption = fmt.Sprintf("📦 Backup: %s (%.2f MB)", key, fileSizeMB)
	if err := t.send(doc); err != nil {
		return fmt.Errorf("%w: failed to send telegram file: %w", domain.ErrTransmission, err)
	}

	return nil
}

// Notify posts a run summary to the chat.
func (t *TelegramStorage) Notify(ctx context.Context, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return t.send(tgbotapi.NewMessage(t.chatID, message))
}

func (t *TelegramStorage) send(c tgbotapi.Chattable) error {
	_, err := t.bot.Send(c)
	return err
}
