package i18n

var catalogue = map[string]map[string]string{
	LocaleZhCN: {
		"error.bad_request":            "请求参数错误",
		"error.unauthorized":           "未登录或登录已过期",
		"error.forbidden":              "无权访问",
		"error.not_found":              "资源不存在",
		"error.too_many_requests":      "请求过于频繁，请稍后再试",
		"error.internal":               "服务器内部错误",
		"error.user_id_invalid":        "会员ID无效",
		"error.admin_id_invalid":       "管理员ID无效",
		"error.context_type_invalid":   "上下文类型错误",
		"error.login_invalid":          "账号或密码错误",
		"error.password_weak":          "密码至少 8 位",
		"error.admin_not_found":        "管理员不存在",
		"error.member_not_found":       "会员不存在",
		"error.member_exists":          "会员已存在",
		"error.member_disabled":        "会员已禁用",
		"error.member_status_invalid":  "会员状态无效",
		"error.username_invalid":       "会员账号无效",
		"error.sponsor_not_found":      "推荐人不存在",
		"error.node_exists":            "会员已在树中",
		"error.root_exists":            "根节点已存在",
		"error.node_not_found":         "节点不存在",
		"error.node_not_activated":     "节点尚未激活",
		"error.slot_unavailable":       "放置位置冲突，请重试",
		"error.amount_invalid":         "金额无效",
		"error.reference_invalid":      "参考号无效",
		"error.insufficient_funds":     "钱包余额不足",
		"error.already_processed":      "该请求已处理",
		"error.wallet_not_found":       "钱包不存在",
		"error.booking_not_found":      "预订不存在",
		"error.booking_status":         "预订状态不允许该操作",
		"error.payment_status":         "支付状态无效",
		"error.reconcile_task":         "不支持的对账任务",
		"error.role_invalid":           "角色无效",
		"error.jwt_secret_missing":     "服务端未配置登录密钥",
		"error.auth_header_missing":    "缺少 Authorization 请求头",
		"error.auth_header_invalid":    "Authorization 格式错误",
		"error.token_invalid":          "登录凭证无效",
		"error.token_revoked":          "登录凭证已失效，请重新登录",
		"error.rate_limit_unavailable": "限流服务不可用",
		"error.rate_limited":           "请求过于频繁，请 %d 秒后再试",
		"error.login_too_many":         "登录尝试过多，请 %d 秒后再试",
		"error.match_too_many":         "配对请求过于频繁，请 %d 秒后再试",
	},
	LocaleEnUS: {
		"error.bad_request":            "Invalid request parameters",
		"error.unauthorized":           "Not signed in or session expired",
		"error.forbidden":              "Access denied",
		"error.not_found":              "Resource not found",
		"error.too_many_requests":      "Too many requests, please retry later",
		"error.internal":               "Internal server error",
		"error.user_id_invalid":        "Invalid member id",
		"error.admin_id_invalid":       "Invalid admin id",
		"error.context_type_invalid":   "Invalid context value",
		"error.login_invalid":          "Invalid username or password",
		"error.password_weak":          "Password must be at least 8 characters",
		"error.admin_not_found":        "Admin not found",
		"error.member_not_found":       "Member not found",
		"error.member_exists":          "Member already exists",
		"error.member_disabled":        "Member is disabled",
		"error.member_status_invalid":  "Invalid member status",
		"error.username_invalid":       "Invalid username",
		"error.sponsor_not_found":      "Sponsor not found",
		"error.node_exists":            "Member is already placed",
		"error.root_exists":            "Tree root already exists",
		"error.node_not_found":         "Node not found",
		"error.node_not_activated":     "Node is not activated",
		"error.slot_unavailable":       "Placement conflict, please retry",
		"error.amount_invalid":         "Invalid amount",
		"error.reference_invalid":      "Invalid reference",
		"error.insufficient_funds":     "Insufficient wallet balance",
		"error.already_processed":      "Request already processed",
		"error.wallet_not_found":       "Wallet not found",
		"error.booking_not_found":      "Booking not found",
		"error.booking_status":         "Booking status does not allow this operation",
		"error.payment_status":         "Invalid payment status",
		"error.reconcile_task":         "Unsupported reconcile task",
		"error.role_invalid":           "Invalid role",
		"error.jwt_secret_missing":     "Signing secret is not configured",
		"error.auth_header_missing":    "Missing Authorization header",
		"error.auth_header_invalid":    "Malformed Authorization header",
		"error.token_invalid":          "Invalid token",
		"error.token_revoked":          "Token revoked, please sign in again",
		"error.rate_limit_unavailable": "Rate limiter unavailable",
		"error.rate_limited":           "Too many requests, retry in %d seconds",
		"error.login_too_many":         "Too many login attempts, retry in %d seconds",
		"error.match_too_many":         "Too many match requests, retry in %d seconds",
	},
}
