package application

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/bengol30/bandgo/internal/domain"
	"github.com/bengol30/bandgo/internal/persistence"
)

// PostParams carries a new feed post.
type PostParams struct {
	Content   string
	BandID    string
	MediaURLs []string
}

// FeedService manages posts, comments and likes. Post counters are recomputed
// from the like and comment rows in the same transaction that changes them.
type FeedService struct {
	service
	settings *SettingsService
}

// NewFeedService constructs a FeedService.
func NewFeedService(deps Deps, settings *SettingsService) *FeedService {
	return &FeedService{service: newService("FeedService", deps, nil), settings: settings}
}

func (s *FeedService) checkContent(tx persistence.Tx, field, content string) error {
	if strings.TrimSpace(content) == "" {
		return invalidField(field, "is required")
	}
	if limit := s.settings.current(tx).MaxPostLength; limit > 0 && utf8.RuneCountInString(content) > limit {
		return invalidField(field, fmt.Sprintf("must be at most %d characters", limit))
	}
	return nil
}

func recount(tx persistence.Tx, post *domain.Post) {
	post.LikesCount = len(tx.Likes().Find(func(l domain.PostLike) bool { return l.PostID == post.ID }))
	post.CommentsCount = len(tx.Comments().Find(func(c domain.Comment) bool { return c.PostID == post.ID }))
}

// CreatePost publishes a post, optionally on behalf of a band the principal belongs to.
func (s *FeedService) CreatePost(ctx context.Context, principal Principal, params PostParams) (post domain.Post, err error) {
	_, done := s.begin(ctx, "CreatePost", "actor_id", principal.UserID, "band_id", params.BandID)
	defer func() { done(err, "post created", "post_id", post.ID) }()

	if err = requireActive(principal); err != nil {
		return
	}
	err = s.write(ctx, func(u *unit) error {
		if err := s.checkContent(u.tx, "content", params.Content); err != nil {
			return err
		}
		if params.BandID != "" {
			band, err := get(u.tx.Bands(), "band", params.BandID)
			if err != nil {
				return err
			}
			if !band.IsMember(principal.UserID) {
				return denied("only members can post for a band")
			}
		}
		now := s.now()
		post = domain.Post{
			ID:        s.idGenerator(),
			AuthorID:  principal.UserID,
			BandID:    params.BandID,
			Content:   params.Content,
			MediaURLs: slices.Clone(params.MediaURLs),
			CreatedAt: now,
			UpdatedAt: now,
		}
		return u.tx.Posts().Insert(post)
	})
	return
}

// GetPost returns one post.
func (s *FeedService) GetPost(ctx context.Context, postID string) (post domain.Post, err error) {
	err = s.read(ctx, func(tx persistence.Tx) error {
		var err error
		post, err = get(tx.Posts(), "post", postID)
		return err
	})
	return
}

// GetPosts lists pinned posts first, then the rest newest first.
// A non-empty bandID limits the feed to that band.
func (s *FeedService) GetPosts(ctx context.Context, bandID string) (posts []domain.Post, err error) {
	err = s.read(ctx, func(tx persistence.Tx) error {
		posts = tx.Posts().Find(func(p domain.Post) bool { return bandID == "" || p.BandID == bandID })
		return nil
	})
	slices.SortStableFunc(posts, func(a, b domain.Post) int {
		if a.IsPinned != b.IsPinned {
			if a.IsPinned {
				return -1
			}
			return 1
		}
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return
}

// DeletePost removes a post with its comments and likes. Author or moderator.
func (s *FeedService) DeletePost(ctx context.Context, principal Principal, postID string) (err error) {
	_, done := s.begin(ctx, "DeletePost", "actor_id", principal.UserID, "post_id", postID)
	defer func() { done(err, "post deleted") }()

	if err = requireActive(principal); err != nil {
		return
	}
	return s.write(ctx, func(u *unit) error {
		post, err := get(u.tx.Posts(), "post", postID)
		if err != nil {
			return err
		}
		if post.AuthorID != principal.UserID && !principal.CanModerate() {
			return denied("only the author can delete a post")
		}
		return deletePostCascade(u.tx, post.ID)
	})
}

func deletePostCascade(tx persistence.Tx, postID string) error {
	if err := deleteWhere(tx.Comments(), func(c domain.Comment) bool { return c.PostID == postID }); err != nil {
		return err
	}
	if err := deleteWhere(tx.Likes(), func(l domain.PostLike) bool { return l.PostID == postID }); err != nil {
		return err
	}
	return tx.Posts().Delete(postID)
}

// PinPost sets the pin flag of a post. Moderators only.
func (s *FeedService) PinPost(ctx context.Context, principal Principal, postID string, pinned bool) (post domain.Post, err error) {
	_, done := s.begin(ctx, "PinPost", "actor_id", principal.UserID, "post_id", postID, "pinned", pinned)
	defer func() { done(err, "post pin updated") }()

	if err = requireModerator(principal); err != nil {
		return
	}
	err = s.write(ctx, func(u *unit) error {
		var err error
		if post, err = get(u.tx.Posts(), "post", postID); err != nil {
			return err
		}
		post.IsPinned = pinned
		post.UpdatedAt = s.now()
		return u.tx.Posts().Update(post)
	})
	return
}

// LikePost adds the principal to the post's likers. Liking twice changes nothing.
func (s *FeedService) LikePost(ctx context.Context, principal Principal, postID string) (post domain.Post, err error) {
	_, done := s.begin(ctx, "LikePost", "actor_id", principal.UserID, "post_id", postID)
	defer func() { done(err, "post liked", "likes", post.LikesCount) }()

	if err = requireActive(principal); err != nil {
		return
	}
	err = s.write(ctx, func(u *unit) error {
		var err error
		if post, err = get(u.tx.Posts(), "post", postID); err != nil {
			return err
		}
		id := domain.PostLikeID(post.ID, principal.UserID)
		if _, err := u.tx.Likes().Get(id); err == nil {
			return nil
		}
		if err := u.tx.Likes().Insert(domain.PostLike{ID: id, PostID: post.ID, UserID: principal.UserID, CreatedAt: s.now()}); err != nil {
			return err
		}
		recount(u.tx, &post)
		post.UpdatedAt = s.now()
		if err := u.tx.Posts().Update(post); err != nil {
			return err
		}
		if post.AuthorID == principal.UserID {
			return nil
		}
		return u.notify(post.AuthorID, domain.NotifyPostLike, "New like", "Someone liked your post",
			map[string]string{"postId": post.ID, "userId": principal.UserID})
	})
	return
}

// UnlikePost removes the principal from the post's likers. Unliking twice changes nothing.
func (s *FeedService) UnlikePost(ctx context.Context, principal Principal, postID string) (post domain.Post, err error) {
	_, done := s.begin(ctx, "UnlikePost", "actor_id", principal.UserID, "post_id", postID)
	defer func() { done(err, "post unliked", "likes", post.LikesCount) }()

	if err = requireActive(principal); err != nil {
		return
	}
	err = s.write(ctx, func(u *unit) error {
		var err error
		if post, err = get(u.tx.Posts(), "post", postID); err != nil {
			return err
		}
		id := domain.PostLikeID(post.ID, principal.UserID)
		if _, err := u.tx.Likes().Get(id); err != nil {
			return nil
		}
		if err := u.tx.Likes().Delete(id); err != nil {
			return err
		}
		recount(u.tx, &post)
		post.UpdatedAt = s.now()
		return u.tx.Posts().Update(post)
	})
	return
}

// CreateComment adds a comment and bumps the post's comment count.
func (s *FeedService) CreateComment(ctx context.Context, principal Principal, postID, content string) (comment domain.Comment, err error) {
	_, done := s.begin(ctx, "CreateComment", "actor_id", principal.UserID, "post_id", postID)
	defer func() { done(err, "comment created", "comment_id", comment.ID) }()

	if err = requireActive(principal); err != nil {
		return
	}
	err = s.write(ctx, func(u *unit) error {
		if err := s.checkContent(u.tx, "content", content); err != nil {
			return err
		}
		post, err := get(u.tx.Posts(), "post", postID)
		if err != nil {
			return err
		}
		now := s.now()
		comment = domain.Comment{
			ID:        s.idGenerator(),
			PostID:    post.ID,
			AuthorID:  principal.UserID,
			Content:   content,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := u.tx.Comments().Insert(comment); err != nil {
			return err
		}
		recount(u.tx, &post)
		post.UpdatedAt = now
		if err := u.tx.Posts().Update(post); err != nil {
			return err
		}
		if post.AuthorID == principal.UserID {
			return nil
		}
		return u.notify(post.AuthorID, domain.NotifyPostComment, "New comment", content,
			map[string]string{"postId": post.ID, "commentId": comment.ID})
	})
	return
}

// DeleteComment removes a comment. The comment author, the post author or a moderator may do so.
func (s *FeedService) DeleteComment(ctx context.Context, principal Principal, commentID string) (err error) {
	_, done := s.begin(ctx, "DeleteComment", "actor_id", principal.UserID, "comment_id", commentID)
	defer func() { done(err, "comment deleted") }()

	if err = requireActive(principal); err != nil {
		return
	}
	return s.write(ctx, func(u *unit) error {
		comment, err := get(u.tx.Comments(), "comment", commentID)
		if err != nil {
			return err
		}
		post, err := get(u.tx.Posts(), "post", comment.PostID)
		if err != nil {
			return err
		}
		if comment.AuthorID != principal.UserID && post.AuthorID != principal.UserID && !principal.CanModerate() {
			return denied("not allowed to delete this comment")
		}
		if err := u.tx.Comments().Delete(comment.ID); err != nil {
			return err
		}
		recount(u.tx, &post)
		post.UpdatedAt = s.now()
		return u.tx.Posts().Update(post)
	})
}

// ListComments returns the comments of a post, oldest first.
func (s *FeedService) ListComments(ctx context.Context, postID string) (comments []domain.Comment, err error) {
	err = s.read(ctx, func(tx persistence.Tx) error {
		if _, err := get(tx.Posts(), "post", postID); err != nil {
			return err
		}
		comments = tx.Comments().Find(func(c domain.Comment) bool { return c.PostID == postID })
		return nil
	})
	return
}
