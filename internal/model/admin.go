package model

// AdminUser — запись реестра администраторов
// доступ к админке есть только у пользователей из этого реестра
type AdminUser struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
}
