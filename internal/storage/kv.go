package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// KV 是带过期时间的命名空间键值表，用于冷却计时等短期状态
type KV struct {
	db *DB
	ns string
}

// KV 返回命名空间 ns 的键值视图
func (db *DB) KV(ns string) *KV {
	return &KV{db: db, ns: ns}
}

// Set 写入键值，ttl 为 0 表示永不过期
func (kv *KV) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	var expiresAt *time.Time
	if ttl > 0 {
		t := time.Now().Add(ttl)
		expiresAt = &t
	}
	_, err := kv.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO kv_store (namespace, key, value, expires_at) VALUES (?, ?, ?, ?)",
		kv.ns, key, value, expiresAt,
	)
	return err
}

// Get 读取键值，过期的键视为不存在并被顺手删除
func (kv *KV) Get(ctx context.Context, key string) (string, error) {
	var value string
	var expiresAt sql.NullTime
	err := kv.db.QueryRowContext(ctx,
		"SELECT value, expires_at FROM kv_store WHERE namespace = ? AND key = ?",
		kv.ns, key,
	).Scan(&value, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	if expiresAt.Valid && expiresAt.Time.Before(time.Now()) {
		_, _ = kv.db.ExecContext(ctx, "DELETE FROM kv_store WHERE namespace = ? AND key = ?", kv.ns, key)
		return "", ErrNotFound
	}
	return value, nil
}

// Exists 判断键存在且未过期
func (kv *KV) Exists(ctx context.Context, key string) (bool, error) {
	_, err := kv.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Delete 删除键；不存在时返回 ErrNotFound
func (kv *KV) Delete(ctx context.Context, key string) error {
	res, err := kv.db.ExecContext(ctx, "DELETE FROM kv_store WHERE namespace = ? AND key = ?", kv.ns, key)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// List 列出命名空间内所有未过期的键值
func (kv *KV) List(ctx context.Context) (map[string]string, error) {
	rows, err := kv.db.QueryContext(ctx,
		"SELECT key, value, expires_at FROM kv_store WHERE namespace = ?", kv.ns)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	now := time.Now()
	out := make(map[string]string)
	for rows.Next() {
		var key, value string
		var expiresAt sql.NullTime
		if err := rows.Scan(&key, &value, &expiresAt); err != nil {
			return nil, err
		}
		if expiresAt.Valid && expiresAt.Time.Before(now) {
			continue
		}
		out[key] = value
	}
	return out, rows.Err()
}

// CleanExpired 删除所有命名空间中已过期的键，返回删除条数
func (db *DB) CleanExpired(ctx context.Context) (int64, error) {
	res, err := db.ExecContext(ctx,
		"DELETE FROM kv_store WHERE expires_at IS NOT NULL AND expires_at < ?", time.Now())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
