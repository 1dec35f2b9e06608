package models

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	assert.NoError(t, err)
	assert.NoError(t, db.AutoMigrate(&User{}, &ReferralLink{}, &Payment{}))
	return db
}

func signup(t *testing.T, db *gorm.DB, email, referralCode string) *User {
	user, _, err := CreateUserWithReferral(db, SignupInput{
		Email:            email,
		PasswordHash:     "$2a$10$hash",
		TelegramUsername: "@" + email,
		ReferralCode:     referralCode,
	})
	assert.NoError(t, err)
	return user
}

func TestIsValidReferralCode(t *testing.T) {
	tests := []struct {
		code  string
		valid bool
	}{
		{"AB1CD", true},
		{"ab1cd", true}, // lookup is case-insensitive
		{"12345", true},
		{"AB1", false},
		{"ABCDEF", false},
		{"AB CD", false},
		{"AB-CD", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.valid, IsValidReferralCode(tt.code))
		})
	}
}

func TestGenerateReferralCode(t *testing.T) {
	db := setupTestDB(t)

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		code, err := GenerateReferralCode(db)
		assert.NoError(t, err)
		assert.Len(t, code, ReferralCodeLength)
		for _, ch := range code {
			assert.Contains(t, referralCodeAlphabet, string(ch))
		}
		seen[code] = true
	}
	// 50 draws from a 36^5 keyspace should not collide.
	assert.Len(t, seen, 50)
}

func TestCreateUserWithReferral(t *testing.T) {
	t.Run("Without Referral Code", func(t *testing.T) {
		db := setupTestDB(t)

		user, referrer, err := CreateUserWithReferral(db, SignupInput{
			Email:            "Alice@Example.com ",
			PasswordHash:     "$2a$10$hash",
			TelegramUsername: "@alice",
		})
		assert.NoError(t, err)
		assert.Nil(t, referrer)
		assert.Equal(t, "alice@example.com", user.Email)
		assert.Len(t, user.ReferralCode, ReferralCodeLength)
		assert.False(t, user.WasReferred)
		assert.Nil(t, user.ReferredByID)
		assert.False(t, user.TelegramJoined)
		assert.Equal(t, RoleUser, user.Role)
	})

	t.Run("With Valid Referral Code", func(t *testing.T) {
		db := setupTestDB(t)
		alice := signup(t, db, "alice@example.com", "")

		bob, referrer, err := CreateUserWithReferral(db, SignupInput{
			Email:            "bob@example.com",
			PasswordHash:     "$2a$10$hash",
			TelegramUsername: "@bob",
			ReferralCode:     alice.ReferralCode,
		})
		assert.NoError(t, err)
		assert.Equal(t, alice.ID, referrer.ID)
		assert.True(t, bob.WasReferred)
		assert.Equal(t, alice.ID, *bob.ReferredByID)
		// The new account gets a fresh code, never the one typed in.
		assert.NotEqual(t, alice.ReferralCode, bob.ReferralCode)

		// Bidirectional consistency: the referrer's list holds the new id.
		var links []ReferralLink
		assert.NoError(t, db.Where("referrer_id = ?", alice.ID).Find(&links).Error)
		assert.Len(t, links, 1)
		assert.Equal(t, bob.ID, links[0].ReferredID)
	})

	t.Run("Lowercase Code Resolves", func(t *testing.T) {
		db := setupTestDB(t)
		alice := signup(t, db, "alice@example.com", "")

		_, referrer, err := CreateUserWithReferral(db, SignupInput{
			Email:            "bob@example.com",
			PasswordHash:     "$2a$10$hash",
			TelegramUsername: "@bob",
			ReferralCode:     "  " + strings.ToLower(alice.ReferralCode) + " ",
		})
		assert.NoError(t, err)
		assert.Equal(t, alice.ID, referrer.ID)
	})

	t.Run("Malformed Code", func(t *testing.T) {
		db := setupTestDB(t)

		_, _, err := CreateUserWithReferral(db, SignupInput{
			Email:            "bob@example.com",
			PasswordHash:     "$2a$10$hash",
			TelegramUsername: "@bob",
			ReferralCode:     "AB1",
		})
		assert.ErrorIs(t, err, ErrInvalidReferralFormat)

		var count int64
		db.Model(&User{}).Count(&count)
		assert.Zero(t, count, "failed signup must not create an account")
	})

	t.Run("Unknown Code", func(t *testing.T) {
		db := setupTestDB(t)

		_, _, err := CreateUserWithReferral(db, SignupInput{
			Email:            "bob@example.com",
			PasswordHash:     "$2a$10$hash",
			TelegramUsername: "@bob",
			ReferralCode:     "ZZZZZ",
		})
		assert.ErrorIs(t, err, ErrReferralNotFound)

		var count int64
		db.Model(&User{}).Count(&count)
		assert.Zero(t, count, "failed signup must not create an account")
	})

	t.Run("Duplicate Email", func(t *testing.T) {
		db := setupTestDB(t)
		signup(t, db, "alice@example.com", "")

		_, _, err := CreateUserWithReferral(db, SignupInput{
			Email:            "ALICE@example.com",
			PasswordHash:     "$2a$10$hash",
			TelegramUsername: "@alice2",
		})
		assert.ErrorIs(t, err, ErrDuplicateAccount)
	})

	t.Run("Codes Stay Unique", func(t *testing.T) {
		db := setupTestDB(t)

		seen := make(map[string]bool)
		for i := 0; i < 30; i++ {
			u := signup(t, db, fmt.Sprintf("user%d@example.com", i), "")
			assert.False(t, seen[u.ReferralCode], "referral code %q issued twice", u.ReferralCode)
			seen[u.ReferralCode] = true
		}
	})
}

func TestReferralStatsFor(t *testing.T) {
	db := setupTestDB(t)
	alice := signup(t, db, "alice@example.com", "")
	bob := signup(t, db, "bob@example.com", alice.ReferralCode)
	signup(t, db, "carol@example.com", alice.ReferralCode)

	assert.NoError(t, db.Model(&User{}).Where("id = ?", bob.ID).Update("telegram_joined", true).Error)

	stats, err := ReferralStatsFor(db, alice, "https://youearn.example.com")
	assert.NoError(t, err)
	assert.Equal(t, 2, stats.TotalReferrals)
	assert.Equal(t, 1, stats.TelegramJoinedCount)
	assert.Len(t, stats.ReferralDetails, 2)
	assert.Equal(t, "https://youearn.example.com/register?ref="+alice.ReferralCode, stats.ReferralLink)
}

func TestAllUsersWithStats(t *testing.T) {
	t.Run("Empty Platform", func(t *testing.T) {
		db := setupTestDB(t)

		users, summary, err := AllUsersWithStats(db)
		assert.NoError(t, err)
		assert.Empty(t, users)
		assert.Zero(t, summary.TotalUsers)
		assert.Zero(t, summary.AverageReferralsPerUser, "no users must not divide by zero")
	})

	t.Run("Counts And Summary", func(t *testing.T) {
		db := setupTestDB(t)
		alice := signup(t, db, "alice@example.com", "")
		bob := signup(t, db, "bob@example.com", alice.ReferralCode)
		signup(t, db, "carol@example.com", alice.ReferralCode)
		signup(t, db, "dave@example.com", bob.ReferralCode)

		assert.NoError(t, db.Model(&User{}).Where("id = ?", bob.ID).Update("telegram_joined", true).Error)

		users, summary, err := AllUsersWithStats(db)
		assert.NoError(t, err)
		assert.Len(t, users, 4)

		byEmail := make(map[string]AccountSummary)
		for _, u := range users {
			byEmail[u.Email] = u
		}
		assert.Equal(t, 2, byEmail["alice@example.com"].ReferralCount)
		assert.Equal(t, 1, byEmail["alice@example.com"].TelegramJoinedReferrals)
		assert.Equal(t, 1, byEmail["bob@example.com"].ReferralCount)
		assert.Zero(t, byEmail["carol@example.com"].ReferralCount)

		assert.Equal(t, 4, summary.TotalUsers)
		assert.Equal(t, 3, summary.TotalReferrals)
		assert.Equal(t, 1, summary.TotalTelegramJoined)
		assert.Equal(t, 0.75, summary.AverageReferralsPerUser)
	})

	t.Run("Newest First", func(t *testing.T) {
		db := setupTestDB(t)
		first := signup(t, db, "first@example.com", "")
		db.Model(&User{}).Where("id = ?", first.ID).Update("created_at", time.Now().Add(-time.Hour))
		signup(t, db, "second@example.com", "")

		users, _, err := AllUsersWithStats(db)
		assert.NoError(t, err)
		assert.Equal(t, "second@example.com", users[0].Email)
		assert.Equal(t, "first@example.com", users[1].Email)
	})

	t.Run("Tolerates Dangling Back Pointer", func(t *testing.T) {
		db := setupTestDB(t)
		alice := signup(t, db, "alice@example.com", "")
		bob := signup(t, db, "bob@example.com", alice.ReferralCode)

		// Simulate a signup whose second write never landed.
		assert.NoError(t, db.Where("referred_id = ?", bob.ID).Delete(&ReferralLink{}).Error)

		users, summary, err := AllUsersWithStats(db)
		assert.NoError(t, err)
		byEmail := make(map[string]AccountSummary)
		for _, u := range users {
			byEmail[u.Email] = u
		}
		// The link table is authoritative; the back-pointer alone counts for nothing.
		assert.Zero(t, byEmail["alice@example.com"].ReferralCount)
		assert.Zero(t, summary.TotalReferrals)
	})
}

func TestLeaderboard(t *testing.T) {
	db := setupTestDB(t)
	alice := signup(t, db, "alice@example.com", "")
	bob := signup(t, db, "bob@example.com", alice.ReferralCode)
	signup(t, db, "carol@example.com", alice.ReferralCode)
	signup(t, db, "dave@example.com", bob.ReferralCode)
	signup(t, db, "erin@example.com", "")

	entries, err := Leaderboard(db, 10)
	assert.NoError(t, err)
	assert.Len(t, entries, 2, "accounts with no referrals are omitted")
	assert.Equal(t, alice.ID, entries[0].ID)
	assert.Equal(t, 2, entries[0].ReferralCount)
	assert.Equal(t, bob.ID, entries[1].ID)

	limited, err := Leaderboard(db, 1)
	assert.NoError(t, err)
	assert.Len(t, limited, 1)
	assert.Equal(t, alice.ID, limited[0].ID)
}
