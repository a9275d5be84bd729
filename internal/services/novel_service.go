package services

import (
	"errors"
	"unicode/utf8"

	"gorm.io/gorm"

	"novelcraft-backend/internal/database"
	"novelcraft-backend/internal/models"
)

var ErrNovelNotFound = errors.New("novel not found")
var ErrChapterNotFound = errors.New("chapter not found")

// GetNovel loads a novel, enforcing ownership.
func GetNovel(novelID, userID uint) (*models.Novel, error) {
	var novel models.Novel
	err := database.DB.Where("id = ? AND user_id = ?", novelID, userID).First(&novel).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNovelNotFound
		}
		return nil, err
	}
	return &novel, nil
}

// FindNovels lists a user's novels, most recently updated first.
func FindNovels(userID uint, page, limit int) ([]models.Novel, int64, error) {
	var novels []models.Novel
	var total int64

	query := database.DB.Model(&models.Novel{}).Where("user_id = ?", userID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := query.Order("updated_at desc").Limit(limit).Offset(offset).Find(&novels).Error; err != nil {
		return nil, 0, err
	}
	return novels, total, nil
}

func CreateNovel(novel *models.Novel) error {
	return database.DB.Create(novel).Error
}

func UpdateNovel(novelID, userID uint, updates map[string]interface{}) (*models.Novel, error) {
	novel, err := GetNovel(novelID, userID)
	if err != nil {
		return nil, err
	}
	if err := database.DB.Model(novel).Updates(updates).Error; err != nil {
		return nil, err
	}
	return novel, nil
}

// DeleteNovel removes a novel and everything nested under it.
func DeleteNovel(novelID, userID uint) error {
	if _, err := GetNovel(novelID, userID); err != nil {
		return err
	}
	return database.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("novel_id = ?", novelID).Delete(&models.Chapter{}).Error; err != nil {
			return err
		}
		if err := tx.Where("novel_id = ?", novelID).Delete(&models.Character{}).Error; err != nil {
			return err
		}
		if err := tx.Where("novel_id = ?", novelID).Delete(&models.Worldview{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Novel{}, novelID).Error
	})
}

// FindChapters lists a novel's chapters in reading order.
func FindChapters(novelID, userID uint) ([]models.Chapter, error) {
	if _, err := GetNovel(novelID, userID); err != nil {
		return nil, err
	}
	var chapters []models.Chapter
	err := database.DB.Where("novel_id = ?", novelID).
		Order("sort asc, id asc").
		Find(&chapters).Error
	return chapters, err
}

func GetChapter(chapterID, userID uint) (*models.Chapter, error) {
	var chapter models.Chapter
	if err := database.DB.First(&chapter, chapterID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrChapterNotFound
		}
		return nil, err
	}
	if _, err := GetNovel(chapter.NovelID, userID); err != nil {
		return nil, ErrChapterNotFound
	}
	return &chapter, nil
}

func CreateChapter(userID uint, chapter *models.Chapter) error {
	if _, err := GetNovel(chapter.NovelID, userID); err != nil {
		return err
	}
	chapter.WordCount = utf8.RuneCountInString(chapter.Content)
	return database.DB.Create(chapter).Error
}

func UpdateChapter(chapterID, userID uint, updates map[string]interface{}) (*models.Chapter, error) {
	chapter, err := GetChapter(chapterID, userID)
	if err != nil {
		return nil, err
	}
	if content, ok := updates["content"].(string); ok {
		updates["word_count"] = utf8.RuneCountInString(content)
	}
	if err := database.DB.Model(chapter).Updates(updates).Error; err != nil {
		return nil, err
	}
	return chapter, nil
}

func DeleteChapter(chapterID, userID uint) error {
	chapter, err := GetChapter(chapterID, userID)
	if err != nil {
		return err
	}
	return database.DB.Delete(chapter).Error
}

// FindCharacters lists a novel's characters.
func FindCharacters(novelID, userID uint) ([]models.Character, error) {
	if _, err := GetNovel(novelID, userID); err != nil {
		return nil, err
	}
	var characters []models.Character
	err := database.DB.Where("novel_id = ?", novelID).Order("id asc").Find(&characters).Error
	return characters, err
}

func CreateCharacter(userID uint, character *models.Character) error {
	if _, err := GetNovel(character.NovelID, userID); err != nil {
		return err
	}
	return database.DB.Create(character).Error
}

func UpdateCharacter(characterID, userID uint, updates map[string]interface{}) (*models.Character, error) {
	var character models.Character
	if err := database.DB.First(&character, characterID).Error; err != nil {
		return nil, err
	}
	if _, err := GetNovel(character.NovelID, userID); err != nil {
		return nil, err
	}
	if err := database.DB.Model(&character).Updates(updates).Error; err != nil {
		return nil, err
	}
	return &character, nil
}

func DeleteCharacter(characterID, userID uint) error {
	var character models.Character
	if err := database.DB.First(&character, characterID).Error; err != nil {
		return err
	}
	if _, err := GetNovel(character.NovelID, userID); err != nil {
		return err
	}
	return database.DB.Delete(&character).Error
}

// FindWorldviews lists a novel's worldbuilding entries.
func FindWorldviews(novelID, userID uint) ([]models.Worldview, error) {
	if _, err := GetNovel(novelID, userID); err != nil {
		return nil, err
	}
	var worldviews []models.Worldview
	err := database.DB.Where("novel_id = ?", novelID).Order("id asc").Find(&worldviews).Error
	return worldviews, err
}

func CreateWorldview(userID uint, worldview *models.Worldview) error {
	if _, err := GetNovel(worldview.NovelID, userID); err != nil {
		return err
	}
	return database.DB.Create(worldview).Error
}

func UpdateWorldview(worldviewID, userID uint, updates map[string]interface{}) (*models.Worldview, error) {
	var worldview models.Worldview
	if err := database.DB.First(&worldview, worldviewID).Error; err != nil {
		return nil, err
	}
	if _, err := GetNovel(worldview.NovelID, userID); err != nil {
		return nil, err
	}
	if err := database.DB.Model(&worldview).Updates(updates).Error; err != nil {
		return nil, err
	}
	return &worldview, nil
}

func DeleteWorldview(worldviewID, userID uint) error {
	var worldview models.Worldview
	if err := database.DB.First(&worldview, worldviewID).Error; err != nil {
		return err
	}
	if _, err := GetNovel(worldview.NovelID, userID); err != nil {
		return err
	}
	return database.DB.Delete(&worldview).Error
}
