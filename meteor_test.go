package main

import (
	"testing"
	"time"
)

func TestNewMeteorSpawnRanges(t *testing.T) {
	for i := 0; i < 100; i++ {
		m := NewMeteor(i)
		if m.X < 0 || m.X > FieldWidth {
			t.Fatalf("spawn X out of range: %f", m.X)
		}
		if m.Y < MeteorSpawnMinY || m.Y > MeteorSpawnMaxY {
			t.Fatalf("spawn Y out of range: %f", m.Y)
		}
		if m.VY < MeteorMinSpeed || m.VY > MeteorMaxSpeed {
			t.Fatalf("fall speed out of range: %f", m.VY)
		}
		if m.VX < -MeteorMaxDrift*m.VY || m.VX > MeteorMaxDrift*m.VY {
			t.Fatalf("drift out of range: vx=%f vy=%f", m.VX, m.VY)
		}
		if m.Spin < MeteorSpinMin || m.Spin > MeteorSpinMax {
			t.Fatalf("spin out of range: %f", m.Spin)
		}
	}
}

func TestMeteorUpdate(t *testing.T) {
	m := &Meteor{X: 100, Y: 0, VX: -50, VY: 400, Spin: 60}
	m.Update(0.5)
	if m.X != 75 {
		t.Errorf("expected X 75, got %f", m.X)
	}
	if m.Y != 200 {
		t.Errorf("expected Y 200, got %f", m.Y)
	}
	if m.Rotation != 30 {
		t.Errorf("expected rotation 30, got %f", m.Rotation)
	}
}

func TestMeteorExpired(t *testing.T) {
	now := time.Now()

	m := &Meteor{Y: 100, SpawnedAt: now}
	if m.Expired(now) {
		t.Error("fresh meteor should not be expired")
	}

	m.SpawnedAt = now.Add(-MeteorLifetime - time.Second)
	if !m.Expired(now) {
		t.Error("meteor past its lifetime should be expired")
	}

	m = &Meteor{Y: MeteorFloorY + 1, SpawnedAt: now}
	if !m.Expired(now) {
		t.Error("meteor below the floor should be expired")
	}
}
