// Package storage реализует хранилище ссылок в памяти процесса
// с необязательным журналом в файле (режимы memory и file).
package storage

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Totarae/shortlink/internal/model"
	"go.uber.org/zap"
)

const (
	opCreate = "create"
	opVisit  = "visit"
	opReap   = "reap"
)

// Entry представляет структуру записи журнала в файле.
type Entry struct {
	Op     string            `json:"op"`
	Code   string            `json:"code,omitempty"`
	Record *model.LinkRecord `json:"record,omitempty"`
	At     *time.Time        `json:"at,omitempty"`
}

// LinkStore потокобезопасное хранилище ссылок.
// Все изменения выполняются под одной блокировкой, поэтому
// проверка уникальности и вставка, как и инкремент, атомарны.
type LinkStore struct {
	mutex  sync.RWMutex
	data   map[string]*model.LinkRecord
	file   journalFile
	path   string
	logger *zap.Logger
	// torn выставляется, если после неудачной записи не удалось отрезать
	// обрывок; следующая запись начнётся с новой строки.
	torn bool
}

// journalFile часть *os.File, нужная для дозаписи журнала.
type journalFile interface {
	io.WriteCloser
	Stat() (os.FileInfo, error)
	Truncate(size int64) error
}

// entryStart префикс каждой записи журнала. json.Marshal экранирует кавычки
// внутри строк, поэтому внутри записи эта последовательность не встречается.
var entryStart = []byte(`{"op":`)

// New создаёт хранилище. Пустой path означает чистый in-memory режим.
func New(path string, logger *zap.Logger) (*LinkStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &LinkStore{
		data:   make(map[string]*model.LinkRecord),
		path:   path,
		logger: logger,
	}
	if path == "" {
		return s, nil
	}

	skipped, err := s.replay()
	if err != nil {
		return nil, fmt.Errorf("load journal: %w", err)
	}
	if skipped > 0 {
		backup, berr := s.backup()
		if berr != nil {
			return nil, fmt.Errorf("backup journal: %w", berr)
		}
		s.logger.Warn("Журнал содержит повреждённые строки, копия сохранена",
			zap.String("path", s.path),
			zap.String("backup", backup),
			zap.Int("skipped", skipped),
		)
	}
	if err := s.compact(); err != nil {
		return nil, fmt.Errorf("compact journal: %w", err)
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	s.file = file
	return s, nil
}

// Insert сохраняет новую запись; занятый код даёт model.ErrCollision.
func (s *LinkStore) Insert(_ context.Context, rec *model.LinkRecord) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.data[rec.Code]; exists {
		return model.ErrCollision
	}
	stored := rec.Clone()
	if err := s.appendToFile(Entry{Op: opCreate, Code: rec.Code, Record: stored}); err != nil {
		return fmt.Errorf("journal insert error: %w", err)
	}
	s.data[rec.Code] = stored
	return nil
}

// FindByCode возвращает копию записи по коду.
func (s *LinkStore) FindByCode(_ context.Context, code string) (*model.LinkRecord, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	rec, ok := s.data[code]
	if !ok {
		return nil, model.ErrNotFound
	}
	return rec.Clone(), nil
}

// IncrementVisit увеличивает счётчик переходов на единицу и возвращает запись после инкремента.
func (s *LinkStore) IncrementVisit(_ context.Context, code string) (*model.LinkRecord, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	rec, ok := s.data[code]
	if !ok {
		return nil, model.ErrNotFound
	}
	if err := s.appendToFile(Entry{Op: opVisit, Code: code}); err != nil {
		return nil, fmt.Errorf("journal visit error: %w", err)
	}
	rec.VisitCount++
	return rec.Clone(), nil
}

// ListAll возвращает все записи, новые первыми.
func (s *LinkStore) ListAll(_ context.Context) ([]*model.LinkRecord, error) {
	s.mutex.RLock()
	result := make([]*model.LinkRecord, 0, len(s.data))
	for _, rec := range s.data {
		result = append(result, rec.Clone())
	}
	s.mutex.RUnlock()

	model.SortNewestFirst(result)
	return result, nil
}

// DeleteExpired удаляет записи с expires_at строго раньше now.
func (s *LinkStore) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	at := now.UTC()
	if s.countStale(at) == 0 {
		return 0, nil
	}
	if err := s.appendToFile(Entry{Op: opReap, At: &at}); err != nil {
		return 0, fmt.Errorf("journal reap error: %w", err)
	}
	return s.reap(at), nil
}

// Ping для in-memory хранилища всегда успешен.
func (s *LinkStore) Ping(_ context.Context) error {
	return nil
}

// Len количество хранимых записей.
func (s *LinkStore) Len() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.data)
}

// Close закрывает файл журнала.
func (s *LinkStore) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

func (s *LinkStore) countStale(now time.Time) int {
	n := 0
	for _, rec := range s.data {
		if rec.ExpiredAt(now) {
			n++
		}
	}
	return n
}

func (s *LinkStore) reap(now time.Time) int64 {
	var deleted int64
	for code, rec := range s.data {
		if rec.ExpiredAt(now) {
			delete(s.data, code)
			deleted++
		}
	}
	return deleted
}

// LoadFromFile восстанавливает состояние, проигрывая журнал.
func (s *LinkStore) LoadFromFile() error {
	_, err := s.replay()
	return err
}

// replay проигрывает журнал построчно и возвращает число пропущенных строк.
// Нечитаемая строка не прерывает загрузку: если к обрывку прилипла целая
// запись, она восстанавливается по префиксу entryStart.
func (s *LinkStore) replay() (int, error) {
	file, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil // Файл ещё не создан, это не ошибка
		}
		return 0, err
	}
	defer file.Close()

	r := bufio.NewReader(file)
	applied, skipped := 0, 0
	for lineNo := 1; ; lineNo++ {
		line, readErr := r.ReadBytes('\n')
		if readErr != nil && !errors.Is(readErr, io.EOF) {
			return skipped, readErr
		}

		line = bytes.TrimSpace(line)
		if len(line) > 0 {
			entry, clean, ok := decodeLine(line)
			if ok {
				s.apply(entry)
				applied++
			}
			if !clean {
				skipped++
				s.logger.Warn("journal line skipped",
					zap.String("path", s.path),
					zap.Int("line", lineNo),
					zap.Bool("recovered", ok),
				)
			}
		}

		if readErr != nil {
			break
		}
	}

	s.logger.Info("Загружен журнал ссылок",
		zap.String("path", s.path),
		zap.Int("entries", applied),
		zap.Int("skipped", skipped),
		zap.Int("links", len(s.data)),
	)
	return skipped, nil
}

// decodeLine разбирает строку журнала. clean=false, если строка содержала
// мусор; ok=true, если из неё удалось извлечь запись.
func decodeLine(line []byte) (entry Entry, clean, ok bool) {
	if json.Unmarshal(line, &entry) == nil {
		return entry, true, true
	}
	for off := 1; off < len(line); {
		i := bytes.Index(line[off:], entryStart)
		if i < 0 {
			break
		}
		off += i
		entry = Entry{}
		if json.Unmarshal(line[off:], &entry) == nil {
			return entry, false, true
		}
		off++
	}
	return Entry{}, false, false
}

// backup копирует журнал рядом с исходным файлом, прежде чем compact
// выбросит нечитаемые строки.
func (s *LinkStore) backup() (string, error) {
	src, err := os.Open(s.path)
	if err != nil {
		return "", err
	}
	defer src.Close()

	dst, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".corrupt-*")
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return "", err
	}
	return dst.Name(), dst.Close()
}

func (s *LinkStore) apply(entry Entry) {
	switch entry.Op {
	case opCreate:
		if entry.Record != nil {
			s.data[entry.Record.Code] = entry.Record.Clone()
		}
	case opVisit:
		if rec, ok := s.data[entry.Code]; ok {
			rec.VisitCount++
		}
	case opReap:
		if entry.At != nil {
			s.reap(*entry.At)
		}
	}
}

// compact переписывает журнал так, чтобы в нём осталась одна запись create на каждую ссылку.
func (s *LinkStore) compact() error {
	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	recs := make([]*model.LinkRecord, 0, len(s.data))
	for _, rec := range s.data {
		recs = append(recs, rec)
	}
	model.SortNewestFirst(recs)

	w := bufio.NewWriter(tmp)
	enc := json.NewEncoder(w)
	for i := len(recs) - 1; i >= 0; i-- {
		if err := enc.Encode(Entry{Op: opCreate, Code: recs[i].Code, Record: recs[i]}); err != nil {
			tmp.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}

// appendToFile добавляет запись в журнал; вызывается под блокировкой.
func (s *LinkStore) appendToFile(entry Entry) error {
	if s.file == nil {
		return nil
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	if s.torn {
		data = append([]byte{'\n'}, data...)
	}

	info, err := s.file.Stat()
	if err != nil {
		return err
	}
	if _, err := s.file.Write(data); err != nil {
		// Частично записанная строка склеилась бы со следующей записью.
		if terr := s.file.Truncate(info.Size()); terr != nil {
			s.torn = true
			s.logger.Error("Не удалось отрезать неполную запись журнала", zap.Error(terr))
		}
		return err
	}
	s.torn = false
	return nil
}
