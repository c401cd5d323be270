package cache

import (
	"context"
	"testing"
	"time"
)

func TestLocalLockExclusive(t *testing.T) {
	lock := NewLocalLock()
	release, ok, err := lock.Acquire(context.Background(), "automation:org:1", time.Minute)
	if err != nil || !ok {
		t.Fatalf("ожидали успешный захват: ok=%v err=%v", ok, err)
	}
	if _, ok, _ := lock.Acquire(context.Background(), "automation:org:1", time.Minute); ok {
		t.Fatalf("ожидали, что ключ занят")
	}
	if _, ok, _ := lock.Acquire(context.Background(), "automation:org:2", time.Minute); !ok {
		t.Fatalf("другая организация не должна блокироваться")
	}
	release()
	if _, ok, _ := lock.Acquire(context.Background(), "automation:org:1", time.Minute); !ok {
		t.Fatalf("ожидали захват после освобождения")
	}
}

func TestLocalLockExpires(t *testing.T) {
	lock := NewLocalLock()
	stale, ok, _ := lock.Acquire(context.Background(), "k", -time.Second)
	if !ok {
		t.Fatalf("ожидали захват")
	}
	fresh, ok, _ := lock.Acquire(context.Background(), "k", time.Minute)
	if !ok {
		t.Fatalf("ожидали захват просроченного ключа")
	}
	stale()
	if _, ok, _ := lock.Acquire(context.Background(), "k", time.Minute); ok {
		t.Fatalf("старый release не должен снимать чужую блокировку")
	}
	fresh()
}
