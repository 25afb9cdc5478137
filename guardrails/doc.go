// 版权所有 2026 FineTuneLab Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 guardrails 提供输入/输出内容安全管线的编排层。

# 概述

Service 将三个子检查器组合为两条管线:

  - CheckInput: 提示注入检测 + 内容审核 + PII 检测(只检测不改写)
  - CheckOutput: 内容审核 + PII 脱敏改写

两条管线均为收集全部模式:即使前面的检查已产生违规,后续检查仍然
执行,调用方拿到完整的违规列表。阻断决策在全部检查完成后统一做出,
输入侧 PII 永不触发阻断,输出侧阻断消息优先于脱敏文本。

# 旁路

Blocking.AllowBypass 开启时,携带 BypassBlocking 选项(且角色命中
BypassRoles,若配置了角色白名单)的调用只记录违规不执行阻断。

# 审计

每次检查可异步写入一条 AuditLogEntry 到注册的 AuditSink。内容预览
按 Logging.RedactSensitiveData 先行脱敏,审计落盘失败不影响检查结果。
*/
package guardrails
