package models

import (
	"crypto/rand"
	"errors"
	"math"
	"math/big"
	"regexp"
	"sort"
	"strings"
	"time"

	"gorm.io/gorm"
)

const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

const (
	referralCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	ReferralCodeLength   = 5

	// Collisions are rare at 36^5 codes; the cap only guards against a
	// saturated keyspace or a misbehaving store.
	maxCodeAttempts = 20
)

var (
	ErrDuplicateAccount        = errors.New("account already exists with this email")
	ErrInvalidReferralFormat   = errors.New("invalid referral code format")
	ErrReferralNotFound        = errors.New("referral code not found")
	ErrCodeGenerationExhausted = errors.New("referral code generation exhausted")
)

var referralCodePattern = regexp.MustCompile(`^[A-Za-z0-9]{5}$`)

type BankDetails struct {
	AccountName   string `gorm:"size:255" json:"accountName"`
	BankName      string `gorm:"size:255" json:"bankName"`
	AccountNumber string `gorm:"size:32" json:"accountNumber"`
}

type User struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	Email            string `gorm:"uniqueIndex;size:255;not null" json:"email"`
	PasswordHash     string `gorm:"size:255;not null" json:"-"`
	TelegramUsername string `gorm:"size:255;not null" json:"telegramUsername"`

	ReferralCode string `gorm:"uniqueIndex;size:5;not null" json:"referralCode"`
	ReferredByID *uint  `gorm:"index" json:"referredBy,omitempty"`
	WasReferred  bool   `gorm:"default:false" json:"wasReferred"`

	TelegramJoined bool   `gorm:"default:false" json:"telegramJoined"`
	Role           string `gorm:"size:20;default:'user'" json:"role"` // admin, user

	BankDetails BankDetails `gorm:"embedded;embeddedPrefix:bank_" json:"bankDetails"`
}

func (User) TableName() string {
	return "users"
}

// ReferralLink is one entry in a referrer's referral list. Inserting a row is
// the atomic append; the unique index on ReferredID means an account can be
// referred at most once, so the list can never hold duplicates.
type ReferralLink struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	CreatedAt  time.Time `json:"createdAt"`
	ReferrerID uint      `gorm:"index;not null" json:"referrerId"`
	ReferredID uint      `gorm:"uniqueIndex;not null" json:"referredId"`
}

func (ReferralLink) TableName() string {
	return "referral_links"
}

// IsValidReferralCode reports whether code has the shape of a referral code.
// Lookup is case-insensitive, so lowercase input is accepted here.
func IsValidReferralCode(code string) bool {
	return referralCodePattern.MatchString(code)
}

// GenerateReferralCode mints a fresh 5-character uppercase alphanumeric code
// that no existing user holds. The existence pre-check is an optimization;
// the unique index on users.referral_code is the real guarantee, and
// CreateUserWithReferral retries on insert conflicts.
func GenerateReferralCode(db *gorm.DB) (string, error) {
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := randomCode()
		if err != nil {
			return "", err
		}

		var count int64
		if err := db.Model(&User{}).Where("referral_code = ?", code).Count(&count).Error; err != nil {
			return "", err
		}
		if count == 0 {
			return code, nil
		}
	}
	return "", ErrCodeGenerationExhausted
}

func randomCode() (string, error) {
	var b strings.Builder
	for i := 0; i < ReferralCodeLength; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(referralCodeAlphabet))))
		if err != nil {
			return "", err
		}
		b.WriteByte(referralCodeAlphabet[n.Int64()])
	}
	return b.String(), nil
}

func FindUserByEmail(db *gorm.DB, email string) (*User, error) {
	var user User
	err := db.Where("email = ?", strings.ToLower(strings.TrimSpace(email))).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func FindUserByReferralCode(db *gorm.DB, code string) (*User, error) {
	var user User
	err := db.Where("referral_code = ?", strings.ToUpper(strings.TrimSpace(code))).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// SignupInput is the validated input to CreateUserWithReferral. ReferralCode,
// when non-empty, is the referrer's code; the new user always gets their own
// freshly minted one.
type SignupInput struct {
	Email            string
	PasswordHash     string
	TelegramUsername string
	ReferralCode     string
}

// CreateUserWithReferral creates a new account and, if a referral code was
// supplied, links it to the referrer. The two writes are a saga, not a
// transaction: the user row lands first, then the referrer's referral list
// gains a row. Aggregations count from referral_links only, so a failed
// second write degrades to an uncredited referral rather than a broken read
// path. Returns the new user and the resolved referrer (nil when none).
func CreateUserWithReferral(db *gorm.DB, input SignupInput) (*User, *User, error) {
	var referrer *User
	if code := strings.TrimSpace(input.ReferralCode); code != "" {
		if !IsValidReferralCode(code) {
			return nil, nil, ErrInvalidReferralFormat
		}
		found, err := FindUserByReferralCode(db, code)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrReferralNotFound
		}
		if err != nil {
			return nil, nil, err
		}
		referrer = found
	}

	user := &User{
		Email:            strings.ToLower(strings.TrimSpace(input.Email)),
		PasswordHash:     input.PasswordHash,
		TelegramUsername: strings.TrimSpace(input.TelegramUsername),
		WasReferred:      referrer != nil,
		Role:             RoleUser,
	}
	if referrer != nil {
		user.ReferredByID = &referrer.ID
	}

	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := GenerateReferralCode(db)
		if err != nil {
			return nil, nil, err
		}
		user.ReferralCode = code

		err = db.Create(user).Error
		if err == nil {
			break
		}
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			var count int64
			if countErr := db.Model(&User{}).Where("email = ?", user.Email).Count(&count).Error; countErr != nil {
				return nil, nil, countErr
			}
			if count > 0 {
				return nil, nil, ErrDuplicateAccount
			}
			// Lost the race on the code's unique index; mint another.
			user.ID = 0
			continue
		}
		return nil, nil, err
	}
	if user.ID == 0 {
		return nil, nil, ErrCodeGenerationExhausted
	}

	if referrer != nil {
		link := &ReferralLink{ReferrerID: referrer.ID, ReferredID: user.ID}
		if err := db.Create(link).Error; err != nil {
			return nil, nil, err
		}
	}

	return user, referrer, nil
}

// ReferralDetail is one referred account as shown to its referrer.
type ReferralDetail struct {
	Email            string    `json:"email"`
	TelegramUsername string    `json:"telegramUsername"`
	ReferralCode     string    `json:"referralCode"`
	TelegramJoined   bool      `json:"telegramJoined"`
	CreatedAt        time.Time `json:"createdAt"`
}

type ReferralStats struct {
	TotalReferrals      int              `json:"totalReferrals"`
	TelegramJoinedCount int              `json:"telegramJoinedCount"`
	ReferralDetails     []ReferralDetail `json:"referralDetails"`
	ReferralLink        string           `json:"referralLink"`
}

// ReferralStatsFor builds the profile-page stats for one user from the
// referral_links table, newest referral first.
func ReferralStatsFor(db *gorm.DB, user *User, baseURL string) (*ReferralStats, error) {
	var referred []User
	err := db.
		Joins("JOIN referral_links ON referral_links.referred_id = users.id").
		Where("referral_links.referrer_id = ?", user.ID).
		Order("users.created_at DESC").
		Find(&referred).Error
	if err != nil {
		return nil, err
	}

	stats := &ReferralStats{
		TotalReferrals:  len(referred),
		ReferralDetails: make([]ReferralDetail, 0, len(referred)),
		ReferralLink:    baseURL + "/register?ref=" + user.ReferralCode,
	}
	for _, r := range referred {
		if r.TelegramJoined {
			stats.TelegramJoinedCount++
		}
		stats.ReferralDetails = append(stats.ReferralDetails, ReferralDetail{
			Email:            r.Email,
			TelegramUsername: r.TelegramUsername,
			ReferralCode:     r.ReferralCode,
			TelegramJoined:   r.TelegramJoined,
			CreatedAt:        r.CreatedAt,
		})
	}
	return stats, nil
}

// AccountSummary is one row of the admin view: a user plus derived referral
// counts. The counts are recomputed on every call, never persisted.
type AccountSummary struct {
	ID                      uint      `json:"id"`
	Email                   string    `json:"email"`
	TelegramUsername        string    `json:"telegramUsername"`
	ReferralCode            string    `json:"referralCode"`
	TelegramJoined          bool      `json:"telegramJoined"`
	Role                    string    `json:"role"`
	WasReferred             bool      `json:"wasReferred"`
	ReferredByID            *uint     `json:"referredBy,omitempty"`
	CreatedAt               time.Time `json:"createdAt"`
	ReferralCount           int       `json:"referralCount"`
	TelegramJoinedReferrals int       `json:"telegramJoinedReferrals"`
}

type PlatformSummary struct {
	TotalUsers              int     `json:"totalUsers"`
	TotalReferrals          int     `json:"totalReferrals"`
	TotalTelegramJoined     int     `json:"totalTelegramJoined"`
	AverageReferralsPerUser float64 `json:"averageReferralsPerUser"`
}

// AllUsersWithStats projects every account with its referral counts, newest
// account first, plus the platform-wide summary. Counts come from the
// referral_links table alone; a dangling ReferredByID back-pointer is
// tolerated and simply not counted.
func AllUsersWithStats(db *gorm.DB) ([]AccountSummary, *PlatformSummary, error) {
	var users []User
	if err := db.Order("created_at DESC").Find(&users).Error; err != nil {
		return nil, nil, err
	}

	var links []ReferralLink
	if err := db.Find(&links).Error; err != nil {
		return nil, nil, err
	}

	joined := make(map[uint]bool, len(users))
	for _, u := range users {
		joined[u.ID] = u.TelegramJoined
	}

	counts := make(map[uint]int)
	joinedCounts := make(map[uint]int)
	for _, l := range links {
		counts[l.ReferrerID]++
		if joined[l.ReferredID] {
			joinedCounts[l.ReferrerID]++
		}
	}

	summaries := make([]AccountSummary, 0, len(users))
	summary := &PlatformSummary{TotalUsers: len(users)}
	for _, u := range users {
		if u.TelegramJoined {
			summary.TotalTelegramJoined++
		}
		summary.TotalReferrals += counts[u.ID]
		summaries = append(summaries, AccountSummary{
			ID:                      u.ID,
			Email:                   u.Email,
			TelegramUsername:        u.TelegramUsername,
			ReferralCode:            u.ReferralCode,
			TelegramJoined:          u.TelegramJoined,
			Role:                    u.Role,
			WasReferred:             u.WasReferred,
			ReferredByID:            u.ReferredByID,
			CreatedAt:               u.CreatedAt,
			ReferralCount:           counts[u.ID],
			TelegramJoinedReferrals: joinedCounts[u.ID],
		})
	}

	if summary.TotalUsers > 0 {
		avg := float64(summary.TotalReferrals) / float64(summary.TotalUsers)
		summary.AverageReferralsPerUser = math.Round(avg*100) / 100
	}

	return summaries, summary, nil
}

// LeaderboardEntry is one row of the referral leaderboard.
type LeaderboardEntry struct {
	ID               uint   `json:"id"`
	TelegramUsername string `json:"telegramUsername"`
	ReferralCode     string `json:"referralCode"`
	ReferralCount    int    `json:"referralCount"`
}

// Leaderboard returns the top referrers, highest referral count first, ties
// broken by earlier signup. Accounts with no referrals are omitted.
func Leaderboard(db *gorm.DB, limit int) ([]LeaderboardEntry, error) {
	summaries, _, err := AllUsersWithStats(db)
	if err != nil {
		return nil, err
	}

	entries := make([]LeaderboardEntry, 0, limit)
	ranked := make([]AccountSummary, 0, len(summaries))
	for _, s := range summaries {
		if s.ReferralCount > 0 {
			ranked = append(ranked, s)
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].ReferralCount != ranked[j].ReferralCount {
			return ranked[i].ReferralCount > ranked[j].ReferralCount
		}
		return ranked[i].CreatedAt.Before(ranked[j].CreatedAt)
	})

	for _, s := range ranked {
		if limit > 0 && len(entries) >= limit {
			break
		}
		entries = append(entries, LeaderboardEntry{
			ID:               s.ID,
			TelegramUsername: s.TelegramUsername,
			ReferralCode:     s.ReferralCode,
			ReferralCount:    s.ReferralCount,
		})
	}
	return entries, nil
}
