package db

import (
	"errors"
	"math/rand/v2"

	"gorm.io/gorm"

	"dolphinpod/internal/apperr"
)

// nudgeMessages are the canned alerts a friend can send.
var nudgeMessages = []string{
	"Time to put the phone down and rest your eyes.",
	"Your friend thinks it's getting late. Sleep well!",
	"How about a short walk instead of another scroll?",
	"Dolphins sleep with half their brain. You need the whole one.",
	"Screens off, lights off. See you tomorrow!",
}

// RandomNudge picks one of the canned alert messages.
func RandomNudge() string {
	return nudgeMessages[rand.IntN(len(nudgeMessages))]
}

// SendFriendRequest creates a pending request. If the receiver already
// asked the requester, that request is accepted instead.
func SendFriendRequest(db *gorm.DB, requesterID, receiverID uint) (*Friendship, error) {
	if requesterID == receiverID {
		return nil, apperr.Validation("cannot befriend yourself")
	}
	if _, err := FindUser(db, receiverID); err != nil {
		return nil, err
	}

	var reverse Friendship
	err := db.Where("requester_id = ? AND receiver_id = ?", receiverID, requesterID).First(&reverse).Error
	switch {
	case err == nil:
		if reverse.Status == FriendshipAccepted {
			return nil, apperr.Conflict("already friends")
		}
		if err := db.Model(&reverse).Update("status", FriendshipAccepted).Error; err != nil {
			return nil, err
		}
		reverse.Status = FriendshipAccepted
		return &reverse, nil
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, err
	}

	f := Friendship{RequesterID: requesterID, ReceiverID: receiverID, Status: FriendshipPending}
	if err := db.Create(&f).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperr.Conflict("friend request already sent")
		}
		return nil, err
	}
	return &f, nil
}

// AcceptFriendRequest accepts a pending request addressed to receiverID.
func AcceptFriendRequest(db *gorm.DB, receiverID, requestID uint) (*Friendship, error) {
	var f Friendship
	err := db.Where("id = ? AND receiver_id = ?", requestID, receiverID).First(&f).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("friend request not found")
	}
	if err != nil {
		return nil, err
	}
	if f.Status == FriendshipAccepted {
		return nil, apperr.Conflict("already friends")
	}
	if err := db.Model(&f).Update("status", FriendshipAccepted).Error; err != nil {
		return nil, err
	}
	f.Status = FriendshipAccepted
	return &f, nil
}

// PendingRequests lists requests waiting on the user.
func PendingRequests(db *gorm.DB, userID uint) ([]Friendship, error) {
	var out []Friendship
	err := db.Where("receiver_id = ? AND status = ?", userID, FriendshipPending).Order("created_at DESC").Find(&out).Error
	return out, err
}

// ListFriends returns the users with an accepted friendship either way.
func ListFriends(db *gorm.DB, userID uint) ([]User, error) {
	var out []User
	err := db.Where(
		"id IN (?) OR id IN (?)",
		db.Model(&Friendship{}).Select("receiver_id").Where("requester_id = ? AND status = ?", userID, FriendshipAccepted),
		db.Model(&Friendship{}).Select("requester_id").Where("receiver_id = ? AND status = ?", userID, FriendshipAccepted),
	).Order("nickname ASC").Find(&out).Error
	return out, err
}

func AreFriends(db *gorm.DB, a, b uint) (bool, error) {
	var count int64
	err := db.Model(&Friendship{}).
		Where("status = ? AND ((requester_id = ? AND receiver_id = ?) OR (requester_id = ? AND receiver_id = ?))",
			FriendshipAccepted, a, b, b, a).
		Count(&count).Error
	return count > 0, err
}

// SendAlert nudges a friend with a random canned message.
func SendAlert(db *gorm.DB, senderID, receiverID uint) (*Alert, error) {
	ok, err := AreFriends(db, senderID, receiverID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.Forbidden("alerts can only be sent to friends")
	}
	a := Alert{SenderID: senderID, ReceiverID: receiverID, AlertType: "NUDGE", Message: RandomNudge()}
	if err := db.Create(&a).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

func ListAlerts(db *gorm.DB, receiverID uint, limit int) ([]Alert, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	var out []Alert
	err := db.Where("receiver_id = ?", receiverID).Order("created_at DESC").Limit(limit).Find(&out).Error
	return out, err
}
